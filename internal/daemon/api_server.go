package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"leaflens/internal/api"
	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/logging"
	"leaflens/internal/scans"
	"leaflens/internal/services"
)

type apiServer struct {
	bind        string
	logger      *slog.Logger
	scans       ScanService
	searcher    catalog.Searcher
	status      func(context.Context) Status
	wake        func()
	maxImages   int
	searchLimit int

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:        strings.TrimSpace(cfg.Paths.APIBind),
		logger:      logger,
		scans:       d.opts.Scans,
		searcher:    d.opts.Searcher,
		status:      d.Status,
		wake:        d.opts.Workflow.Wake,
		maxImages:   cfg.Workflow.MaxImages,
		searchLimit: cfg.Catalog.SearchLimit,
	}
	if srv.searchLimit <= 0 {
		srv.searchLimit = 5
	}
	if srv.searcher == nil {
		srv.searcher = catalog.NewLocalSearcher(d.opts.Catalog)
	}
	srv.handler = requestIDMiddleware(authMiddleware(cfg.Paths.APIToken, srv.routes()))
	return srv
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scans", s.handleCreateScan)
	mux.HandleFunc("GET /api/scans", s.handleListScans)
	mux.HandleFunc("GET /api/scans/{id}", s.handleGetScan)
	mux.HandleFunc("POST /api/scans/{id}/process", s.handleProcessScan)
	mux.HandleFunc("POST /api/scans/{id}/retry", s.handleRetryScan)
	mux.HandleFunc("PUT /api/scans/{id}/selection", s.handleSelection)
	mux.HandleFunc("GET /api/catalog/search", s.handleCatalogSearch)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Synchronous processing waits on the analysis service.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Database:     api.FromDatabaseHealth(status.Database),
		Catalog:      api.FromSnapshot(status.Catalog, status.Watching),
	}
	code := http.StatusOK
	if !status.Database.Reachable {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, payload)
}

func (s *apiServer) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "", "catalog search", "query parameter q is required", nil), nil)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), s.searchLimit)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	entries, err := s.searcher.Search(r.Context(), query, limit)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromEntries(query, entries))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

// writeFailure renders the typed failure payload. rec, when non-nil, is the
// scan the failure belongs to.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error, rec *scans.Record) {
	status, payload := api.FromError(err, rec)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.log()), "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.String(logging.FieldFailureKind, payload.Kind),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, payload)
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
