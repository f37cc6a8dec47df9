package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowforge/orchestrator/agent"
	"github.com/flowforge/orchestrator/graph/emit"
	"github.com/flowforge/orchestrator/graph/store"
	"github.com/flowforge/orchestrator/hub"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemStore, *TokenManager) {
	t.Helper()
	st := store.NewMemStore()
	registry := agent.NewRegistry(agent.Dependencies{
		DBPool:     agent.NewDBPoolCache(),
		ChatModels: agent.NewChatModelSet(),
	})
	h := hub.New()
	svc := NewService(registry, st, h, emit.NewNullEmitter(), 2)
	tokens := NewTokenManager("test-secret", "orchestrator-test", time.Minute)
	handlers := NewHandlers(svc, h)
	mux := NewRouter(handlers, tokens)
	return httptest.NewServer(mux), st, tokens
}

func authedRequest(t *testing.T, tokens *TokenManager, method, url string, body interface{}) *http.Request {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	token, _, err := tokens.IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandlers_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandlers_ExecuteWorkflow_RequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/workflows/wf-1/execute", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("POST execute: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHandlers_ExecuteWorkflow_QueuesAndReportsCompletion(t *testing.T) {
	srv, st, tokens := newTestServer(t)
	defer srv.Close()

	st.SeedWorkflow(passthroughWorkflow("wf-1"))

	req := authedRequest(t, tokens, http.MethodPost, srv.URL+"/api/v1/workflows/wf-1/execute", executeRequest{
		InputData: map[string]interface{}{"x": 1.0},
	})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST execute: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var execResp executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&execResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if execResp.Status != "queued" || execResp.ExecutionID == "" {
		t.Fatalf("unexpected response: %+v", execResp)
	}

	deadline := time.Now().Add(2 * time.Second)
	var getReq *http.Request
	for time.Now().Before(deadline) {
		getReq = authedRequest(t, tokens, http.MethodGet, srv.URL+"/api/v1/executions/"+execResp.ExecutionID, nil)
		getResp, err := http.DefaultClient.Do(getReq)
		if err != nil {
			t.Fatalf("GET execution: %v", err)
		}
		var exec store.Execution
		_ = json.NewDecoder(getResp.Body).Decode(&exec)
		getResp.Body.Close()
		if exec.Status == "completed" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("execution never reached completed status")
}

func TestHandlers_GetExecutionEvents(t *testing.T) {
	srv, st, tokens := newTestServer(t)
	defer srv.Close()

	st.SeedWorkflow(passthroughWorkflow("wf-1"))

	req := authedRequest(t, tokens, http.MethodPost, srv.URL+"/api/v1/workflows/wf-1/execute", executeRequest{})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST execute: %v", err)
	}
	var execResp executeResponse
	_ = json.NewDecoder(resp.Body).Decode(&execResp)
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		getReq := authedRequest(t, tokens, http.MethodGet, srv.URL+"/api/v1/executions/"+execResp.ExecutionID, nil)
		getResp, err := http.DefaultClient.Do(getReq)
		if err != nil {
			t.Fatalf("GET execution: %v", err)
		}
		var exec store.Execution
		_ = json.NewDecoder(getResp.Body).Decode(&exec)
		getResp.Body.Close()
		if exec.Status == "completed" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	eventsReq := authedRequest(t, tokens, http.MethodGet, srv.URL+"/api/v1/executions/"+execResp.ExecutionID+"/events", nil)
	eventsResp, err := http.DefaultClient.Do(eventsReq)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer eventsResp.Body.Close()
	if eventsResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", eventsResp.StatusCode)
	}
	var events []map[string]interface{}
	if err := json.NewDecoder(eventsResp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one recorded event")
	}
}

func TestHandlers_ValidateWorkflowData(t *testing.T) {
	srv, _, tokens := newTestServer(t)
	defer srv.Close()

	req := authedRequest(t, tokens, http.MethodPost, srv.URL+"/api/v1/workflows/validate", validateRequest{
		WorkflowData: map[string]interface{}{},
	})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST validate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandlers_CancelExecution_NotFound(t *testing.T) {
	srv, _, tokens := newTestServer(t)
	defer srv.Close()

	req := authedRequest(t, tokens, http.MethodPost, srv.URL+"/api/v1/executions/missing/cancel", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
