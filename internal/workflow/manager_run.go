package workflow

import (
	"context"
	"errors"
	"slices"
	"time"

	"leaflens/internal/logging"
	"leaflens/internal/scans"
	"leaflens/internal/services"
)

const cleanupInterval = time.Hour

var resumableStatuses = []scans.Status{scans.StatusCreated, scans.StatusUploaded, scans.StatusAnalyzed}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.processor == nil {
		m.mu.Unlock()
		return errors.New("workflow processor not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if err := m.reclaimer.Reclaim(runCtx); err != nil {
		logging.WarnWithContext(m.logger, "reclaim stale scans failed; stuck scans may remain", "heartbeat_reclaim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check scan database access"))
	}

	jobs := make(chan string)
	m.wg.Add(m.workers + 2)
	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i, jobs)
	}
	go m.dispatch(runCtx, jobs)
	go m.sweep(runCtx)

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval))
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// dispatch feeds resumable scans to workers, oldest first, skipping scans a
// worker already holds.
func (m *Manager) dispatch(ctx context.Context, jobs chan<- string) {
	defer m.wg.Done()
	defer close(jobs)

	for {
		if err := m.reclaimer.Reclaim(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("reclaim stale scans failed", logging.Error(err))
		}

		ids, err := m.pending(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logging.ErrorWithContext(m.logger, "failed to fetch resumable scans", "scan_fetch_failed", err,
				logging.String(logging.FieldErrorHint, "check scan database access"))
		}
		for _, id := range ids {
			if !m.claim(id) {
				continue
			}
			select {
			case jobs <- id:
			case <-ctx.Done():
				m.release(id)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *Manager) pending(ctx context.Context) ([]string, error) {
	records, err := m.store.List(ctx, scans.ListOptions{Statuses: resumableStatuses})
	if err != nil {
		return nil, err
	}
	slices.Reverse(records)
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Resumable() {
			ids = append(ids, rec.ID)
		}
	}
	return ids, nil
}

func (m *Manager) claim(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[id]; busy {
		return false
	}
	m.active[id] = struct{}{}
	return true
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *Manager) runWorker(ctx context.Context, worker int, jobs <-chan string) {
	defer m.wg.Done()
	for id := range jobs {
		m.processScan(ctx, worker, id)
		m.release(id)
	}
}

func (m *Manager) processScan(ctx context.Context, worker int, id string) {
	ctx = services.WithScanID(ctx, id)
	logger := logging.WithContext(ctx, m.logger).With(logging.Int("worker", worker))

	rec, err := m.processor.Process(ctx, id)
	if rec != nil {
		m.setLastScan(rec)
	}
	switch {
	case err == nil:
		logger.Debug("scan settled", logging.String("status", string(rec.Status)))
	case errors.Is(err, context.Canceled):
		logger.Debug("scan interrupted by shutdown")
	default:
		m.setLastError(err)
		logger.Debug("scan held after failure",
			logging.Kind(err),
			logging.Error(err))
	}
}

func (m *Manager) sweep(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		m.CleanStaging(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
