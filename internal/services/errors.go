package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool      = errors.New("external service error")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// FailureKind is the stable, machine-readable classification persisted on scan
// records and returned to clients.
type FailureKind string

const (
	KindDecode               FailureKind = "decode_error"
	KindCompressionExhausted FailureKind = "compression_exhausted"
	KindUploadFailed         FailureKind = "upload_failed"
	KindAnalysisTimeout      FailureKind = "analysis_timeout"
	KindAnalysisService      FailureKind = "analysis_service_error"
	KindValidation           FailureKind = "validation"
	KindConfiguration        FailureKind = "configuration"
	KindNotFound             FailureKind = "not_found"
	KindInvalidTransition    FailureKind = "invalid_transition"
	KindTimeout              FailureKind = "timeout"
	KindExternal             FailureKind = "external"
	KindCanceled             FailureKind = "canceled"
	KindInternal             FailureKind = "internal"
)

// kinded is implemented by typed pipeline errors that know their own kind.
type kinded interface {
	FailureKind() FailureKind
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err. Typed pipeline errors win over sentinel markers so a
// timeout inside an analysis call reports analysis_timeout rather than timeout.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.FailureKind()
	}
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrExternalTool):
		return KindExternal
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindCompressionExhausted, KindUploadFailed, KindAnalysisTimeout, KindAnalysisService,
		KindTimeout, KindExternal, KindCanceled:
		return true
	case KindInternal:
		return errors.Is(err, ErrTransient)
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
