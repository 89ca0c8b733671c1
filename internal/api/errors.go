package api

import (
	"errors"
	"net/http"

	"leaflens/internal/lifecycle"
	"leaflens/internal/scans"
	"leaflens/internal/services"
)

// HTTPStatus maps a failure kind onto a response code. Expected conditions
// never produce a bare 500.
func HTTPStatus(kind services.FailureKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindDecode, services.KindCompressionExhausted:
		return http.StatusUnprocessableEntity
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidTransition:
		return http.StatusConflict
	case services.KindAnalysisTimeout, services.KindTimeout:
		return http.StatusGatewayTimeout
	case services.KindUploadFailed, services.KindAnalysisService, services.KindExternal:
		return http.StatusBadGateway
	case services.KindConfiguration, services.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the typed failure payload for err. rec, when non-nil, is
// the scan the failure belongs to.
func FromError(err error, rec *scans.Record) (int, ErrorResponse) {
	kind := services.KindOf(err)
	if kind == "" {
		kind = services.KindInternal
	}
	resp := ErrorResponse{Kind: string(kind)}
	if err != nil {
		resp.Error = err.Error()
	}
	var stageErr *lifecycle.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = stageErr.Stage
	}
	if rec != nil {
		scan := FromRecord(rec)
		resp.Scan = &scan
	}
	return HTTPStatus(kind), resp
}
