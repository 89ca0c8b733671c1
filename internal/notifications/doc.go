// Package notifications pushes terminal scan outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on whether notifications are enabled. Per-event toggles
// in the notifications config section suppress matched, unmatched, or failure
// messages individually.
package notifications
