package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"leaflens/internal/logging"
)

// heartbeat refreshes the record's heartbeat until ctx ends so the workflow
// reclaimer leaves a long-running stage alone.
func (c *Controller) heartbeat(ctx context.Context, wg *sync.WaitGroup, scanID string) {
	defer wg.Done()
	interval := c.cfg.HeartbeatInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, c.logger.With(logging.String(logging.FieldComponent, "lifecycle-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.deps.Store.UpdateHeartbeat(ctx, scanID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat stopped")
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
