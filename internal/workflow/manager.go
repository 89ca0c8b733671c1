package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"leaflens/internal/config"
	"leaflens/internal/logging"
	"leaflens/internal/scans"
	"leaflens/internal/staging"
)

// Processor runs one scan to its next resting state.
type Processor interface {
	Process(ctx context.Context, id string) (*scans.Record, error)
}

// Manager coordinates background scan processing.
type Manager struct {
	cfg          *config.Config
	store        *scans.Store
	processor    Processor
	staging      *staging.Area
	logger       *slog.Logger
	pollInterval time.Duration
	workers      int

	reclaimer *Reclaimer

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	active   map[string]struct{}
	lastErr  error
	lastScan *scans.Record
	wake     chan struct{}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *scans.Store, processor Processor, area *staging.Area, logger *slog.Logger) *Manager {
	poll := cfg.PollInterval()
	if poll <= 0 {
		poll = time.Second
	}
	workers := cfg.Workflow.MaxConcurrentScans
	if workers <= 0 {
		workers = 1
	}
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	return &Manager{
		cfg:          cfg,
		store:        store,
		processor:    processor,
		staging:      area,
		logger:       logger,
		pollInterval: poll,
		workers:      workers,
		reclaimer:    NewReclaimer(store, logger, cfg.HeartbeatTimeout()),
		active:       make(map[string]struct{}),
		wake:         make(chan struct{}, 1),
	}
}

// Wake asks the dispatcher to poll now instead of waiting for the interval.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
