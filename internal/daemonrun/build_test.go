package daemonrun_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"

	"leaflens/internal/analysis"
	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/daemonrun"
	"leaflens/internal/lifecycle"
	"leaflens/internal/logging"
	"leaflens/internal/scans"
	"leaflens/internal/services"
	"leaflens/internal/testsupport"
	"leaflens/internal/upload"
)

type fakeRemote struct {
	uploads  atomic.Int32
	analyses atomic.Int32
	server   *httptest.Server
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := &fakeRemote{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/uploads/inline", func(w http.ResponseWriter, r *http.Request) {
		var req upload.Base64Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Base64 == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.uploads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(upload.Stored{ID: "obj-" + req.Path})
	})
	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, r *http.Request) {
		f.analyses.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(analysis.Payload{
			Labels: []analysis.PayloadFeature{{Description: "Lobed leaf", Score: 0.8}},
			Text:   "Quercus robur",
		})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func TestBuildKeepsOnlyConfiguredStrategies(t *testing.T) {
	remote := newFakeRemote(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithControlPlane(remote.server.URL),
		testsupport.WithAnalyzer(remote.server.URL),
	)

	rt, err := daemonrun.Build(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	got := rt.Broker.Strategies()
	if !slices.Equal(got, []string{upload.NameSigned, upload.NameInline}) {
		t.Fatalf("expected signed and inline only, got %v", got)
	}
	if rt.Watcher != nil {
		t.Fatal("expected no watcher when catalog.watch is off")
	}
	if rt.Catalog.Current().Len() != 0 {
		t.Fatalf("expected missing catalog to start empty, got %d entries", rt.Catalog.Current().Len())
	}
}

func TestBuildRejectsEmptyStrategyChain(t *testing.T) {
	remote := newFakeRemote(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithAnalyzer(remote.server.URL),
		testsupport.WithStrategies(config.StrategyDelegated),
	)

	_, err := daemonrun.Build(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	remote := newFakeRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithControlPlane(remote.server.URL))
	cfg.Analysis.Provider = "oracle"

	_, err := daemonrun.Build(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildRejectsInvalidCatalog(t *testing.T) {
	remote := newFakeRemote(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithControlPlane(remote.server.URL),
		testsupport.WithAnalyzer(remote.server.URL),
	)
	testsupport.WriteFile(t, cfg.Catalog.Path, 16)

	_, err := daemonrun.Build(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unreadable catalog, got %v", err)
	}
}

func TestRuntimeProcessesScanEndToEnd(t *testing.T) {
	remote := newFakeRemote(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithControlPlane(remote.server.URL),
		testsupport.WithAnalyzer(remote.server.URL),
		testsupport.WithStrategies(config.StrategyInline),
	)
	if err := catalog.Write(cfg.Catalog.Path, []catalog.Entry{
		{ID: "quercus-robur", Name: "Quercus robur", Aliases: []string{"English oak"}, Tags: []string{"lobed leaf", "tree"}},
		{ID: "acer-rubrum", Name: "Acer rubrum", Aliases: []string{"Red maple"}, Tags: []string{"palmate leaf", "tree"}},
	}); err != nil {
		t.Fatalf("catalog.Write: %v", err)
	}

	ctx := context.Background()
	rt, err := daemonrun.Build(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	images := make([]lifecycle.Image, 3)
	for i := range images {
		images[i] = lifecycle.Image{Filename: "leaf.jpg", ContentType: "image/jpeg", Data: testsupport.WriteJPEG(t, 64, 48)}
	}
	rec, err := rt.Controller.CreateScan(ctx, "owner-1", images)
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	got, err := rt.Controller.Process(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Status != scans.StatusMatched || got.MatchedCandidateID != "quercus-robur" {
		t.Fatalf("unexpected outcome %s %q", got.Status, got.MatchedCandidateID)
	}
	if remote.uploads.Load() != 3 || remote.analyses.Load() != 3 {
		t.Fatalf("expected three uploads and analyses, got %d and %d", remote.uploads.Load(), remote.analyses.Load())
	}
	for _, ref := range got.ImageRefs {
		if ref.Strategy != upload.NameInline {
			t.Fatalf("expected inline strategy, got %+v", ref)
		}
	}
}
