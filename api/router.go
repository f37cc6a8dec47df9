package api

import "net/http"

// NewRouter wires the spec §6 JSON API plus the collaboration
// WebSocket endpoint onto a Go 1.22 method-pattern ServeMux. Grounded
// on cklxx-elephant.ai's internal/delivery/server/http/router.go and
// the SWARM-INTELLIGENCE-NETWORK orchestrator's services/orchestrator
// /main.go, both of which route via net/http rather than a framework.
func NewRouter(h *Handlers, auth *TokenManager) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /api/v1/workflows/{id}/execute", auth.RequireAuth(h.ExecuteWorkflow))
	mux.HandleFunc("GET /api/v1/workflows/{id}/executions", auth.RequireAuth(h.ListExecutions))
	mux.HandleFunc("GET /api/v1/executions/{id}", auth.RequireAuth(h.GetExecution))
	mux.HandleFunc("GET /api/v1/executions/{id}/events", auth.RequireAuth(h.GetExecutionEvents))
	mux.HandleFunc("POST /api/v1/executions/{id}/cancel", auth.RequireAuth(h.CancelExecution))
	mux.HandleFunc("POST /api/v1/workflows/validate", auth.RequireAuth(h.ValidateWorkflowData))
	mux.HandleFunc("POST /api/v1/workflows/{id}/validate", auth.RequireAuth(h.ValidateSavedWorkflow))

	mux.HandleFunc("GET /api/v1/workflows/{id}/collaborate", auth.RequireAuth(h.Collaborate))

	return mux
}
