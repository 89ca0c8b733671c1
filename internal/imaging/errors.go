package imaging

import (
	"fmt"

	"leaflens/internal/services"
)

// DecodeError reports input that could not be decoded as an image. It is
// never retryable.
type DecodeError struct {
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	if e.ContentType != "" {
		return fmt.Sprintf("decode %s image: %v", e.ContentType, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets callers match against services.ErrValidation.
func (e *DecodeError) Is(target error) bool { return target == services.ErrValidation }

func (e *DecodeError) FailureKind() services.FailureKind { return services.KindDecode }

// CompressionExhaustedError reports that the byte budget could not be met
// within the attempt budget. SmallestBytes is the best size reached.
type CompressionExhaustedError struct {
	TargetBytes   int
	SmallestBytes int
	Attempts      int
}

func (e *CompressionExhaustedError) Error() string {
	return fmt.Sprintf("image too large after compression: %d bytes after %d attempts, target %d",
		e.SmallestBytes, e.Attempts, e.TargetBytes)
}

func (e *CompressionExhaustedError) Is(target error) bool { return target == services.ErrValidation }

func (e *CompressionExhaustedError) FailureKind() services.FailureKind {
	return services.KindCompressionExhausted
}
