package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/lifecycle"
	"leaflens/internal/logging"
	"leaflens/internal/scans"
	"leaflens/internal/workflow"
)

// LockFileName is created under paths.log_dir while a daemon runs.
const LockFileName = "leaflens.lock"

// ScanService is the scan lifecycle surface the API drives.
type ScanService interface {
	CreateScan(ctx context.Context, ownerID string, images []lifecycle.Image) (*scans.Record, error)
	GetScan(ctx context.Context, id string) (*scans.Record, error)
	ListScans(ctx context.Context, opts scans.ListOptions) ([]*scans.Record, error)
	Process(ctx context.Context, id string) (*scans.Record, error)
	SaveSelectedMatch(ctx context.Context, id, entryID string) (*scans.Record, error)
	Retry(ctx context.Context, id string) (*scans.Record, bool, error)
}

// Options carries the collaborators a Daemon coordinates. Watcher and
// Searcher are optional.
type Options struct {
	Store    *scans.Store
	Scans    ScanService
	Workflow *workflow.Manager
	Catalog  *catalog.Holder
	Watcher  *catalog.Watcher
	Searcher catalog.Searcher
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	opts   Options
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Database     scans.DatabaseHealth
	Catalog      *catalog.Snapshot
	Watching     bool
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || opts.Store == nil || opts.Scans == nil || opts.Workflow == nil || opts.Catalog == nil {
		return nil, errors.New("daemon requires config, store, scan service, workflow manager, and catalog")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		opts:     opts,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the workflow manager, the
// catalog watcher, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another leaflens daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.opts.Workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.opts.Workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}
	if w := d.opts.Watcher; w != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(d.logger, "catalog watcher stopped", "catalog_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check catalog.path permissions or disable catalog.watch"),
					logging.String(logging.FieldImpact, "catalog edits require a restart"),
				)
			}
		}()
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("leaflens daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.opts.Workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("leaflens daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.opts.Store.Close()
}

// Handler exposes the API routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.opts.Workflow.Status(ctx),
		Database:     d.opts.Store.CheckHealth(ctx),
		Catalog:      d.opts.Catalog.Current(),
		Watching:     d.opts.Watcher != nil,
		LockFilePath: d.lockPath,
	}
}
