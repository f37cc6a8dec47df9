package api

import (
	"errors"
	"net/http"

	"github.com/flowforge/orchestrator/graph"
	"github.com/flowforge/orchestrator/graph/store"
)

// ErrorResponse is the JSON body written for any non-2xx response
// (spec §6: error codes 400/401/403/404/500).
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// statusFor maps a service-layer error to the HTTP status spec §6
// requires. graph.EngineError carries its own Code (spec §7's
// taxonomy); store.ErrNotFound and ValidationFailedError are handled
// as special cases since they don't travel through EngineError.
func statusFor(err error) (int, ErrorResponse) {
	var ee *graph.EngineError
	if errors.As(err, &ee) {
		return httpStatusForCode(ee.Code), ErrorResponse{Error: ee.Message, Code: ee.Code}
	}

	var vf *ValidationFailedError
	if errors.As(err, &vf) {
		return http.StatusBadRequest, ErrorResponse{
			Error:   "workflow failed validation",
			Code:    graph.CodeInvalidWorkflow,
			Details: vf.Result.Errors,
		}
	}

	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, ErrorResponse{Error: "not found", Code: graph.CodeNotFound}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: graph.CodeInternal}
}

func httpStatusForCode(code string) int {
	switch code {
	case graph.CodeInvalidInput, graph.CodeInvalidWorkflow, graph.CodeUnknownAgent:
		return http.StatusBadRequest
	case graph.CodeUnauthorized:
		return http.StatusUnauthorized
	case graph.CodeForbidden:
		return http.StatusForbidden
	case graph.CodeNotFound:
		return http.StatusNotFound
	case graph.CodeConflict:
		return http.StatusConflict
	case graph.CodeCancelled:
		return http.StatusConflict
	case graph.CodeAgentFailure, graph.CodeMaxStepsExceeded, graph.CodeNodeTimeout, graph.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
