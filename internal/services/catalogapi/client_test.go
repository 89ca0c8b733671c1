package catalogapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"leaflens/internal/services"
	"leaflens/internal/services/catalogapi"
	"leaflens/internal/services/httpclient"
)

func TestSearchSendsQueryAndTrims(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("q") != "fiddle leaf" || r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"entries":[{"id":"a","name":"A"},{"id":"","name":"blank"},{"id":"b","name":"B"},{"id":"c","name":"C"}]}`))
	}))
	defer srv.Close()

	entries, err := catalogapi.New(catalogapi.Config{BaseURL: srv.URL}).Search(context.Background(), " fiddle leaf ", 2)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "a" || entries[1].ID != "b" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestSearchBlankQuerySkipsRequest(t *testing.T) {
	entries, err := catalogapi.New(catalogapi.Config{BaseURL: "http://127.0.0.1:1"}).Search(context.Background(), "  ", 5)
	if err != nil || entries != nil {
		t.Fatalf("expected nil result, got %+v %v", entries, err)
	}
}

func TestSearchWrapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := catalogapi.New(catalogapi.Config{BaseURL: srv.URL}, httpclient.WithRetryMaxAttempts(1)).Search(context.Background(), "fern", 5)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external error, got %v", err)
	}
}
