package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/flowforge/orchestrator/graph/emit"
	"github.com/flowforge/orchestrator/graph/store"
	"github.com/flowforge/orchestrator/hub"
)

// Handlers binds a Service (and the collaboration hub, for the
// WebSocket endpoint) to the net/http handler functions router.go
// registers against the Go 1.22 method-pattern ServeMux (spec §6).
type Handlers struct {
	svc *Service
	hub *hub.Hub
}

// NewHandlers builds a Handlers bound to svc and h.
func NewHandlers(svc *Service, h *hub.Hub) *Handlers {
	return &Handlers{svc: svc, hub: h}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

func handleServiceError(w http.ResponseWriter, err error) {
	status, resp := statusFor(err)
	writeError(w, status, resp)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func storeFilter(workflowID, userID, status string, limit, offset int) store.ExecutionFilter {
	if limit <= 0 {
		limit = 50
	}
	return store.ExecutionFilter{
		WorkflowID: workflowID,
		UserID:     userID,
		Status:     status,
		Limit:      limit,
		Offset:     offset,
	}
}

// executeRequest is POST /workflows/{id}/execute's body.
type executeRequest struct {
	InputData map[string]interface{} `json:"input_data"`
}

// executeResponse matches spec §6: {execution_id, status: "queued", message}.
type executeResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// ExecuteWorkflow handles POST /api/v1/workflows/{id}/execute.
func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	userID, _ := UserIDFromContext(r.Context())

	var req executeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	execID, err := h.svc.StartExecution(r.Context(), workflowID, userID, req.InputData)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, executeResponse{
		ExecutionID: execID,
		Status:      "queued",
		Message:     "execution queued",
	})
}

// ListExecutions handles GET /api/v1/workflows/{id}/executions.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	userID, _ := UserIDFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	execs, err := h.svc.ListExecutions(r.Context(), storeFilter(workflowID, userID, r.URL.Query().Get("status"), limit, offset))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

// GetExecution handles GET /api/v1/executions/{id}.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	execID := r.PathValue("id")
	userID, _ := UserIDFromContext(r.Context())

	exec, err := h.svc.GetExecution(r.Context(), execID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// CancelExecution handles POST /api/v1/executions/{id}/cancel.
func (h *Handlers) CancelExecution(w http.ResponseWriter, r *http.Request) {
	execID := r.PathValue("id")
	userID, _ := UserIDFromContext(r.Context())

	if err := h.svc.CancelExecution(r.Context(), execID, userID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// GetExecutionEvents handles GET /api/v1/executions/{id}/events,
// returning the buffered step-level event history for one execution.
// Query params node_id, msg, min_step, and max_step narrow the result
// (emit.HistoryFilter); all are optional.
func (h *Handlers) GetExecutionEvents(w http.ResponseWriter, r *http.Request) {
	execID := r.PathValue("id")

	filter := emit.HistoryFilter{
		NodeID: r.URL.Query().Get("node_id"),
		Msg:    r.URL.Query().Get("msg"),
	}
	if raw := r.URL.Query().Get("min_step"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.MinStep = &v
		}
	}
	if raw := r.URL.Query().Get("max_step"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.MaxStep = &v
		}
	}

	writeJSON(w, http.StatusOK, h.svc.GetExecutionEvents(execID, filter))
}

// validateRequest is the body for validating an unsaved workflow_data blob.
type validateRequest struct {
	WorkflowData map[string]interface{} `json:"workflow_data"`
}

// ValidateWorkflowData handles POST /api/v1/workflows/validate.
func (h *Handlers) ValidateWorkflowData(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	result, err := h.svc.ValidateWorkflowData(req.WorkflowData)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ValidateSavedWorkflow handles POST /api/v1/workflows/{id}/validate.
func (h *Handlers) ValidateSavedWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	userID, _ := UserIDFromContext(r.Context())

	wf, err := h.svc.store.GetWorkflow(r.Context(), workflowID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	result, err := h.svc.ValidateWorkflowData(wf.WorkflowData)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Collaborate upgrades GET /api/v1/workflows/{id}/collaborate to a
// WebSocket connection and hands it to the hub for the session's
// lifetime (spec §4.4).
func (h *Handlers) Collaborate(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	userID, _ := UserIDFromContext(r.Context())
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	// Serve's only failure mode is the WebSocket upgrade itself, which
	// already writes its own error response before returning.
	_ = h.hub.Serve(w, r, workflowID, userID)
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
