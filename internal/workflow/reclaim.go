package workflow

import (
	"context"
	"log/slog"
	"time"

	"leaflens/internal/logging"
	"leaflens/internal/scans"
)

// Reclaimer rolls back scans whose in-flight stage stopped heartbeating.
type Reclaimer struct {
	store   *scans.Store
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewReclaimer creates a reclaimer. A non-positive timeout disables it.
func NewReclaimer(store *scans.Store, logger *slog.Logger, timeout time.Duration) *Reclaimer {
	return &Reclaimer{store: store, logger: logger, timeout: timeout, now: time.Now}
}

// Reclaim returns stale in-flight scans to their last completed status.
func (r *Reclaimer) Reclaim(ctx context.Context) error {
	if r == nil || r.timeout <= 0 {
		return nil
	}
	reclaimed, err := r.store.ReclaimStale(ctx, r.now().Add(-r.timeout))
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		r.logger.Info("reclaimed stale scans",
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
			logging.Int64("count", reclaimed))
	}
	return nil
}
