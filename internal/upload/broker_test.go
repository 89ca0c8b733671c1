package upload_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"leaflens/internal/config"
	"leaflens/internal/imaging"
	"leaflens/internal/logging"
	"leaflens/internal/services"
	"leaflens/internal/services/controlplane"
	"leaflens/internal/services/httpclient"
	"leaflens/internal/services/ingest"
	"leaflens/internal/upload"
)

func smallImage() imaging.CompressedImage {
	return imaging.CompressedImage{Data: []byte("0123456789"), ContentType: "image/jpeg"}
}

func hint() upload.Hint {
	return upload.Hint{Filename: "Leaf Photo.JPG", ContentType: "image/jpeg", OwnerID: "Owner@1", ScanID: "scan-1", Index: 2}
}

type fakeStrategy struct {
	name   string
	viable bool
	ref    upload.Ref
	err    error
	calls  int
}

func (f *fakeStrategy) Name() string { return f.name }
func (f *fakeStrategy) Viable(imaging.CompressedImage, upload.Hint) bool { return f.viable }
func (f *fakeStrategy) Attempt(context.Context, imaging.CompressedImage, upload.Hint) (upload.Ref, error) {
	f.calls++
	return f.ref, f.err
}

func TestObjectPathLayout(t *testing.T) {
	if got := upload.ObjectPath(hint()); got != "owner_1/scan-1/2-Leaf-Photo.jpg" {
		t.Fatalf("ObjectPath = %q", got)
	}
}

func TestEncodedLen(t *testing.T) {
	for n, want := range map[int]int{0: 0, 1: 4, 3: 4, 4: 8, 3_000_000: 4_000_000} {
		if got := upload.EncodedLen(n); got != want {
			t.Fatalf("EncodedLen(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestBrokerFirstSuccessWins(t *testing.T) {
	first := &fakeStrategy{name: "a", viable: true, err: errors.New("network down")}
	skipped := &fakeStrategy{name: "b", viable: false}
	second := &fakeStrategy{name: "c", viable: true, ref: upload.Ref{Bucket: "scans", Path: "p"}}
	never := &fakeStrategy{name: "d", viable: true}

	ref, err := upload.NewBroker(logging.NewNop(), first, skipped, second, never).Store(context.Background(), smallImage(), hint())
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if ref.Strategy != "c" || ref.Size != 10 || ref.ContentType != "image/jpeg" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if first.calls != 1 || skipped.calls != 0 || second.calls != 1 || never.calls != 0 {
		t.Fatalf("unexpected call counts %d %d %d %d", first.calls, skipped.calls, second.calls, never.calls)
	}
}

func TestBrokerSurfacesLastConcreteError(t *testing.T) {
	policy := errors.New("policy rejected")
	size := errors.New("payload too large")
	broker := upload.NewBroker(logging.NewNop(),
		&fakeStrategy{name: "a", viable: true, err: policy},
		&fakeStrategy{name: "b", viable: true, err: size},
	)
	_, err := broker.Store(context.Background(), smallImage(), hint())

	var failed *upload.FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected FailedError, got %v", err)
	}
	if !errors.Is(err, size) || errors.Is(failed.Err, policy) {
		t.Fatalf("expected last cause, got %v", failed.Err)
	}
	if len(failed.Attempts) != 2 || failed.Attempts[0].Strategy != "a" {
		t.Fatalf("unexpected attempts %+v", failed.Attempts)
	}
	if services.KindOf(err) != services.KindUploadFailed || !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("unexpected classification %q", services.KindOf(err))
	}
}

func TestBrokerRejectsIncompleteRef(t *testing.T) {
	broker := upload.NewBroker(logging.NewNop(), &fakeStrategy{name: "a", viable: true, ref: upload.Ref{ID: "x"}})
	if _, err := broker.Store(context.Background(), smallImage(), hint()); err == nil {
		t.Fatal("expected an unfinalized reference to be rejected")
	}
}

func TestBrokerWithoutViableStrategy(t *testing.T) {
	_, err := upload.NewBroker(logging.NewNop(), &fakeStrategy{name: "a"}).Store(context.Background(), smallImage(), hint())
	var failed *upload.FailedError
	if !errors.As(err, &failed) || failed.Err == nil {
		t.Fatalf("expected FailedError with cause, got %v", err)
	}
}

func TestBrokerStopsOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()
	next := &fakeStrategy{name: "b", viable: true, ref: upload.Ref{Bucket: "b", Path: "p"}}
	broker := upload.NewBroker(logging.NewNop(), &fakeStrategy{name: "a", viable: true, err: ctx.Err()}, next)

	_, err := broker.Store(ctx, smallImage(), hint())
	if services.KindOf(err) != services.KindTimeout {
		t.Fatalf("expected timeout kind, got %q (%v)", services.KindOf(err), err)
	}
	if next.calls != 0 {
		t.Fatal("expected chain to stop once the deadline expired")
	}
}

func TestChainHonorsConfiguredOrder(t *testing.T) {
	available := map[string]upload.Strategy{
		"signed": &fakeStrategy{name: "signed"},
		"inline": &fakeStrategy{name: "inline"},
	}
	chain := upload.Chain([]string{"inline", "delegated", "SIGNED"}, available)
	if len(chain) != 2 || chain[0].Name() != "inline" || chain[1].Name() != "signed" {
		t.Fatalf("unexpected chain %v", chain)
	}
}

// Scenario B: the control plane answers "unsupported" for the signed path and
// the broker falls back to delegated ingest without surfacing an error.
func TestBrokerFallsBackToDelegatedWhenSignedUnsupported(t *testing.T) {
	var credentialCalls int32
	cp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/uploads/credentials" {
			atomic.AddInt32(&credentialCalls, 1)
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"unsupported"}`))
			return
		}
		t.Errorf("unexpected control plane call %s", r.URL.Path)
		http.NotFound(w, r)
	}))
	defer cp.Close()

	var ingested upload.Base64Request
	in := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&ingested)
		_ = json.NewEncoder(w).Encode(upload.Stored{ID: "ing-42"})
	}))
	defer in.Close()

	cfg := config.Default().Upload
	cpClient := controlplane.New(controlplane.Config{BaseURL: cp.URL})
	broker := upload.NewBroker(logging.NewNop(), upload.Chain(cfg.Strategies, map[string]upload.Strategy{
		upload.NameSigned:    upload.NewSigned(cpClient, cfg.Bucket, nil),
		upload.NameDelegated: upload.NewDelegated(ingest.New(ingest.Config{BaseURL: in.URL}), cfg.Bucket, cfg.DelegatedMaxBytes),
		upload.NameInline:    upload.NewInline(cpClient, nil, cfg.Bucket, cfg.InlineCeilingBytes, 1, logging.NewNop()),
	})...)

	ref, err := broker.Store(context.Background(), smallImage(), hint())
	if err != nil {
		t.Fatalf("expected transparent fallback, got %v", err)
	}
	if ref.Strategy != upload.NameDelegated || ref.ID != "ing-42" || !ref.Valid() {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if ref.Path != "owner_1/scan-1/2-Leaf-Photo.jpg" || ref.Bucket != cfg.Bucket {
		t.Fatalf("unexpected ref location %s", ref.String())
	}
	if got := atomic.LoadInt32(&credentialCalls); got != 1 {
		t.Fatalf("unsupported must not be retried, got %d credential calls", got)
	}
	decoded, _ := base64.StdEncoding.DecodeString(ingested.Base64)
	if string(decoded) != "0123456789" || ingested.OwnerID != "Owner@1" {
		t.Fatalf("unexpected ingest payload %+v", ingested)
	}
}

func TestSignedStrategyTransfersThenFinalizes(t *testing.T) {
	var stored []byte
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		stored = buf.Bytes()
	}))
	defer storage.Close()

	var finalized bool
	cp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/uploads/credentials":
			_ = json.NewEncoder(w).Encode(upload.Credential{URL: storage.URL + "/put", Method: http.MethodPut, Token: "tok"})
		case "/v1/uploads/finalize":
			if stored == nil {
				t.Error("finalize called before transfer")
			}
			finalized = true
			_ = json.NewEncoder(w).Encode(upload.Stored{ID: "obj-1"})
		}
	}))
	defer cp.Close()

	signed := upload.NewSigned(controlplane.New(controlplane.Config{BaseURL: cp.URL}), "scans", storage.Client())
	ref, err := upload.NewBroker(logging.NewNop(), signed).Store(context.Background(), smallImage(), hint())
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !finalized || string(stored) != "0123456789" || ref.ID != "obj-1" || ref.Strategy != upload.NameSigned {
		t.Fatalf("unexpected outcome ref=%+v finalized=%v", ref, finalized)
	}
}

func TestSignedStrategyNeverReturnsUnfinalizedRef(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer storage.Close()
	cp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/uploads/credentials":
			_ = json.NewEncoder(w).Encode(upload.Credential{URL: storage.URL})
		default:
			http.Error(w, "finalize rejected", http.StatusUnprocessableEntity)
		}
	}))
	defer cp.Close()

	signed := upload.NewSigned(controlplane.New(controlplane.Config{BaseURL: cp.URL}), "scans", storage.Client())
	ref, err := upload.NewBroker(logging.NewNop(), signed).Store(context.Background(), smallImage(), hint())
	if err == nil || ref.Valid() {
		t.Fatalf("expected failure without reference, got %+v", ref)
	}
}

func TestDelegatedSkipsLargeObjects(t *testing.T) {
	d := upload.NewDelegated(ingest.New(ingest.Config{BaseURL: "http://unused"}), "scans", 5)
	if d.Viable(smallImage(), hint()) {
		t.Fatal("expected 10-byte image to exceed 5-byte delegated limit")
	}
}

func noiseJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestInlineRecompressesToFitCeiling(t *testing.T) {
	data := noiseJPEG(t, 400, 400)
	ceiling := upload.EncodedLen(len(data)) / 2

	var received upload.Base64Request
	cp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(upload.Stored{ID: "inline-1"})
	}))
	defer cp.Close()

	compressor := imaging.New(config.Default().Compression)
	inline := upload.NewInline(controlplane.New(controlplane.Config{BaseURL: cp.URL}), compressor, "scans", ceiling, 6, logging.NewNop())
	ref, err := upload.NewBroker(logging.NewNop(), inline).Store(context.Background(),
		imaging.CompressedImage{Data: data, ContentType: "image/jpeg"}, hint())
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if len(received.Base64) > ceiling {
		t.Fatalf("inline payload %d exceeds ceiling %d", len(received.Base64), ceiling)
	}
	if ref.Size >= len(data) || ref.Strategy != upload.NameInline {
		t.Fatalf("expected recompressed ref, got %+v", ref)
	}
}

func TestInlineSizeRejectionIsConcrete(t *testing.T) {
	cp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer cp.Close()

	client := controlplane.New(controlplane.Config{BaseURL: cp.URL}, httpclient.WithRetryMaxAttempts(1))
	inline := upload.NewInline(client, nil, "scans", 0, 1, logging.NewNop())
	_, err := upload.NewBroker(logging.NewNop(), inline).Store(context.Background(), smallImage(), hint())
	if !errors.Is(err, controlplane.ErrPayloadTooLarge) {
		t.Fatalf("expected size rejection to survive as last cause, got %v", err)
	}
}
