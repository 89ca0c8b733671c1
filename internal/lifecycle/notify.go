package lifecycle

import (
	"context"
	"log/slog"

	"leaflens/internal/logging"
	"leaflens/internal/notifications"
	"leaflens/internal/scans"
)

func (c *Controller) publishOutcome(ctx context.Context, logger *slog.Logger, rec *scans.Record) {
	event := notifications.EventScanUnmatched
	payload := notifications.Payload{"scanId": rec.ID}
	if top, ok := rec.TopCandidate(); ok && rec.Status == scans.StatusMatched {
		event = notifications.EventScanMatched
		payload["name"] = top.Name
		payload["confidence"] = top.Confidence
		logger.Info("scan matched",
			logging.String(logging.FieldEventType, "scan_matched"),
			logging.String("catalog_entry_id", top.CatalogEntryID),
			logging.Int("confidence", top.Confidence))
	} else {
		names := make([]string, 0, len(rec.Suggestions))
		for _, s := range rec.Suggestions {
			names = append(names, s.Name)
		}
		payload["suggestions"] = names
		logger.Info("scan unmatched",
			logging.String(logging.FieldEventType, "scan_unmatched"),
			logging.Int("candidates", len(rec.Candidates)),
			logging.Int("suggestions", len(names)))
	}
	c.publish(ctx, logger, event, payload)
}

func (c *Controller) publishFailure(ctx context.Context, logger *slog.Logger, rec *scans.Record, stage string, cause error) {
	c.publish(ctx, logger, notifications.EventScanFailed, notifications.Payload{
		"scanId": rec.ID,
		"stage":  stage,
		"error":  cause.Error(),
	})
}

func (c *Controller) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := c.deps.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
