package objectstore_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"leaflens/internal/config"
	"leaflens/internal/logging"
	"leaflens/internal/objectstore"
	"leaflens/internal/services"
	"leaflens/internal/services/httpclient"
	"leaflens/internal/upload"
)

// fakeS3 is a path-style bucket that stores PUT bodies in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag-`+strconv.Itoa(len(body))+`"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if r.URL.Path == "/scans" || r.URL.Path == "/scans/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("ETag", `"etag-`+strconv.Itoa(len(body))+`"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newStore(t *testing.T) (*objectstore.Store, *httptest.Server) {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	srv := httptest.NewServer(&fakeS3{objects: map[string][]byte{}})
	t.Cleanup(srv.Close)

	cfg := config.Default().ObjectStore
	cfg.Enabled = true
	cfg.Endpoint = srv.URL
	cfg.Bucket = "scans"
	cfg.AccessKeyID = "AKIDTEST"
	cfg.SecretAccessKey = "secret"
	cfg.UsePathStyle = true

	store, err := objectstore.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, srv
}

func TestSignedTransferRoundTrip(t *testing.T) {
	store, srv := newStore(t)
	ctx := context.Background()
	payload := []byte("jpeg-bytes")

	cred, err := store.IssueCredential(ctx, upload.CredentialRequest{Path: "owner/scan/0-leaf.jpg", ContentType: "image/jpeg", Size: len(payload)})
	if err != nil {
		t.Fatalf("IssueCredential: %v", err)
	}
	if cred.Token == "" || cred.Method != http.MethodPut {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if err := httpclient.Transfer(ctx, srv.Client(), cred.Method, cred.URL, cred.Headers, payload); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	stored, err := store.Finalize(ctx, upload.FinalizeRequest{Path: "owner/scan/0-leaf.jpg", Token: cred.Token, Size: len(payload)})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if stored.Bucket != "scans" || stored.Path != "owner/scan/0-leaf.jpg" || stored.ID == "" {
		t.Fatalf("unexpected stored %+v", stored)
	}

	data, contentType, err := store.Fetch(ctx, upload.Ref{Bucket: stored.Bucket, Path: stored.Path})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != string(payload) || contentType != "image/jpeg" {
		t.Fatalf("unexpected fetch %q %q", data, contentType)
	}

	if _, err := store.Finalize(ctx, upload.FinalizeRequest{Path: "owner/scan/0-leaf.jpg", Token: cred.Token}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected reused token rejection, got %v", err)
	}
}

func TestFinalizeRequiresUploadedObject(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	cred, err := store.IssueCredential(ctx, upload.CredentialRequest{Path: "a/b/0-x.jpg"})
	if err != nil {
		t.Fatalf("IssueCredential: %v", err)
	}
	if _, err := store.Finalize(ctx, upload.FinalizeRequest{Path: "a/b/0-x.jpg", Token: cred.Token}); err == nil {
		t.Fatal("expected finalize of missing object to fail")
	}
}

func TestFinalizeRejectsMismatchedPath(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	cred, err := store.IssueCredential(ctx, upload.CredentialRequest{Path: "a/b/0-x.jpg"})
	if err != nil {
		t.Fatalf("IssueCredential: %v", err)
	}
	if _, err := store.Finalize(ctx, upload.FinalizeRequest{Path: "a/b/1-y.jpg", Token: cred.Token}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected path mismatch rejection, got %v", err)
	}
}
