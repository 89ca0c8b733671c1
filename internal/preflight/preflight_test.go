package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEndpoint_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckEndpoint(context.Background(), "Control plane", srv.URL, "good-key")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckEndpoint_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	result := CheckEndpoint(context.Background(), "Control plane", srv.URL, "bad-key")
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckEndpoint_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if result := CheckEndpoint(context.Background(), "Analyzer", srv.URL, ""); result.Passed {
		t.Fatal("expected failure for 5xx")
	}
}

func TestCheckEndpoint_MissingURL(t *testing.T) {
	result := CheckEndpoint(context.Background(), "Ingest", "", "key")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()
	missing := CheckCatalog(filepath.Join(dir, "missing.json"))
	if missing.Passed {
		t.Fatal("expected failure for missing catalog")
	}

	path := filepath.Join(dir, "catalog.json")
	if err := catalog.Write(path, []catalog.Entry{{ID: "acer-rubrum", Name: "Acer rubrum"}}); err != nil {
		t.Fatalf("catalog.Write: %v", err)
	}
	if result := CheckCatalog(path); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckCatalog(broken); result.Passed {
		t.Fatal("expected failure for invalid catalog")
	}
}

func TestCheckAnalysisCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Analysis.Provider = config.ProviderGemini
	cfg.Gemini.APIKey = ""
	if result := CheckAnalysisCredentials(cfg); result.Passed {
		t.Fatal("expected failure without gemini key")
	}
	cfg.Gemini.APIKey = "key"
	if result := CheckAnalysisCredentials(cfg); !result.Passed {
		t.Fatalf("expected pass with key, got: %s", result.Detail)
	}

	cfg.Analysis.Provider = config.ProviderVision
	cfg.Vision.CredentialsFile = filepath.Join(t.TempDir(), "absent.json")
	if result := CheckAnalysisCredentials(cfg); result.Passed {
		t.Fatal("expected failure for unreadable credentials file")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	testsupport.MustLoadCatalog(t, cfg, catalog.Entry{ID: "acer-rubrum", Name: "Acer rubrum"})

	results := RunAll(context.Background(), cfg)
	// Three directories, catalog, and analysis credentials.
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesCollaboratorsWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithControlPlane(srv.URL), testsupport.WithAnalyzer(srv.URL))
	results := RunAll(context.Background(), cfg)

	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Name] = true
		if (r.Name == "Control plane" || r.Name == "Analyzer") && !r.Passed {
			t.Errorf("%s check failed: %s", r.Name, r.Detail)
		}
	}
	if !seen["Control plane"] || !seen["Analyzer"] {
		t.Fatalf("expected control plane and analyzer checks, got %v", seen)
	}
	if seen["Ingest endpoint"] {
		t.Fatal("expected unconfigured ingest to be skipped")
	}
}
