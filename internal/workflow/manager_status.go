package workflow

import (
	"context"

	"leaflens/internal/logging"
	"leaflens/internal/scans"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveScans []string
	LastError   string
	LastScan    *scans.Record
	ScanStats   map[scans.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Workers: m.workers}
	for id := range m.active {
		summary.ActiveScans = append(summary.ActiveScans, id)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastScan != nil {
		copy := *m.lastScan
		summary.LastScan = &copy
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read scan stats", logging.Error(err))
	}
	summary.ScanStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastScan(rec *scans.Record) {
	m.mu.Lock()
	if rec != nil {
		copy := *rec
		m.lastScan = &copy
	} else {
		m.lastScan = nil
	}
	m.mu.Unlock()
}
