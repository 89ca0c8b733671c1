package analysis

import (
	"fmt"
	"time"

	"leaflens/internal/services"
)

// TimeoutError reports that the analysis service did not answer within the
// bounded wait, after the single automatic retry.
type TimeoutError struct {
	Timeout  time.Duration
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis timed out after %s (%d attempts)", e.Timeout, e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == services.ErrTimeout }

func (e *TimeoutError) FailureKind() services.FailureKind { return services.KindAnalysisTimeout }

// ServiceError reports that the analysis service could not run. Code is the
// backend's status or error code.
type ServiceError struct {
	Code string
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("analysis service error (%s)", e.Code)
	}
	return fmt.Sprintf("analysis service error (%s): %v", e.Code, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == services.ErrExternalTool }

func (e *ServiceError) FailureKind() services.FailureKind { return services.KindAnalysisService }

// NewServiceError wraps err with a backend code.
func NewServiceError(code string, err error) *ServiceError {
	if code == "" {
		code = "unknown"
	}
	return &ServiceError{Code: code, Err: err}
}
