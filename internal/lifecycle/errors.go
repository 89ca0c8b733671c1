package lifecycle

import (
	"fmt"

	"leaflens/internal/scans"
	"leaflens/internal/services"
)

// StageError reports the stage that stopped a scan. Its kind is the kind of
// the underlying cause, or the recorded kind when the failure was loaded from
// the store.
type StageError struct {
	ScanID string
	Stage  string
	Kind   services.FailureKind
	Err    error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scan %s failed while %s", e.ScanID, e.Stage)
	}
	return fmt.Sprintf("scan %s failed while %s: %v", e.ScanID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) FailureKind() services.FailureKind {
	if e.Kind != "" {
		return e.Kind
	}
	return services.KindOf(e.Err)
}

func stageError(rec *scans.Record, stage string, err error) *StageError {
	return &StageError{ScanID: rec.ID, Stage: stage, Kind: services.KindOf(err), Err: err}
}

// recordedFailure rebuilds the error for a failure persisted on rec.
func recordedFailure(rec *scans.Record) *StageError {
	f := rec.Failure
	return &StageError{
		ScanID: rec.ID,
		Stage:  f.Stage,
		Kind:   f.Kind,
		Err:    fmt.Errorf("%s (retry the scan to resume)", f.Message),
	}
}
