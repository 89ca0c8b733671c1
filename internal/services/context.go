package services

import "context"

type contextKey string

const (
	scanIDKey     contextKey = "scan_id"
	stageKey      contextKey = "stage"
	imageIndexKey contextKey = "image_index"
	requestIDKey  contextKey = "request_id"
)

// WithScanID annotates context with the scan record identifier.
func WithScanID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, scanIDKey, id)
}

// ScanIDFromContext extracts the scan record identifier if present.
func ScanIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(scanIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the lifecycle stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithImageIndex annotates context with the 0-based photo index inside a scan.
func WithImageIndex(ctx context.Context, index int) context.Context {
	if index < 0 {
		return ctx
	}
	return context.WithValue(ctx, imageIndexKey, index)
}

// ImageIndexFromContext returns the photo index if present.
func ImageIndexFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(imageIndexKey).(int)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
