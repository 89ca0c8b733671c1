package workflow

import (
	"context"
	"path/filepath"

	"leaflens/internal/logging"
	"leaflens/internal/scans"
	"leaflens/internal/staging"
)

// CleanStaging removes staging directories of scans that no longer need raw
// images, and directories of pending scans older than the retention window.
func (m *Manager) CleanStaging(ctx context.Context) staging.SweepResult {
	if m.staging == nil || m.staging.Root() == "" {
		return staging.SweepResult{}
	}
	records, err := m.store.List(ctx, scans.ListOptions{Statuses: []scans.Status{scans.StatusCreated, scans.StatusUploading}})
	if err != nil {
		m.logger.Warn("staging cleanup skipped", logging.Error(err))
		return staging.SweepResult{}
	}
	active := make(map[string]struct{}, len(records))
	for _, rec := range records {
		active[filepath.Base(m.staging.Dir(rec.ID))] = struct{}{}
	}

	result := m.staging.Sweep(ctx, staging.SweepOptions{Active: active, MaxAge: m.cfg.StagingRetention()}, m.logger)
	if len(result.Removed) > 0 {
		m.logger.Info("staging cleaned",
			logging.String(logging.FieldEventType, "staging_cleanup"),
			logging.Int("removed", len(result.Removed)),
			logging.Int64("reclaimed_bytes", result.Reclaimed()))
	}
	return result
}
