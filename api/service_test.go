package api

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/orchestrator/agent"
	"github.com/flowforge/orchestrator/graph/emit"
	"github.com/flowforge/orchestrator/graph/store"
	"github.com/flowforge/orchestrator/hub"
)

func newTestService(t *testing.T) (*Service, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	registry := agent.NewRegistry(agent.Dependencies{
		DBPool:     agent.NewDBPoolCache(),
		ChatModels: agent.NewChatModelSet(),
	})
	svc := NewService(registry, st, hub.New(), emit.NewNullEmitter(), 2)
	return svc, st
}

func passthroughWorkflow(id string) store.Workflow {
	return store.Workflow{
		ID:     id,
		UserID: "user-1",
		Status: "published",
		WorkflowData: map[string]interface{}{
			"nodes": []interface{}{
				map[string]interface{}{
					"id":       "n1",
					"kind":     "action",
					"position": map[string]interface{}{"x": 0.0, "y": 0.0},
					"data":     map[string]interface{}{},
				},
			},
		},
	}
}

func waitForTerminal(t *testing.T, svc *Service, execID string) store.Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := svc.GetExecution(context.Background(), execID, "user-1")
		if err != nil {
			t.Fatalf("GetExecution: %v", err)
		}
		if exec.Status != "queued" && exec.Status != "running" {
			return exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s did not reach a terminal status in time", execID)
	return store.Execution{}
}

func TestService_StartExecution_RunsToCompletion(t *testing.T) {
	svc, st := newTestService(t)
	st.SeedWorkflow(passthroughWorkflow("wf-1"))

	execID, err := svc.StartExecution(context.Background(), "wf-1", "user-1", map[string]interface{}{"x": 1.0})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	exec := waitForTerminal(t, svc, execID)
	if exec.Status != "completed" {
		t.Fatalf("expected completed, got %q (error=%q)", exec.Status, exec.ErrorMessage)
	}
}

func TestService_StartExecution_UnknownWorkflowErrors(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.StartExecution(context.Background(), "missing", "user-1", nil); err == nil {
		t.Fatal("expected an error for an unknown workflow")
	}
}

func TestService_StartExecution_InvalidWorkflowRejected(t *testing.T) {
	svc, st := newTestService(t)
	st.SeedWorkflow(store.Workflow{
		ID:           "wf-empty",
		UserID:       "user-1",
		WorkflowData: map[string]interface{}{},
	})

	_, err := svc.StartExecution(context.Background(), "wf-empty", "user-1", nil)
	if err == nil {
		t.Fatal("expected a validation error for an empty workflow")
	}
	if _, ok := err.(*ValidationFailedError); !ok {
		t.Fatalf("expected *ValidationFailedError, got %T: %v", err, err)
	}
}

func TestService_CancelExecution_RejectsTerminalExecution(t *testing.T) {
	svc, st := newTestService(t)
	st.SeedWorkflow(passthroughWorkflow("wf-2"))

	execID, err := svc.StartExecution(context.Background(), "wf-2", "user-1", nil)
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	waitForTerminal(t, svc, execID)

	if err := svc.CancelExecution(context.Background(), execID, "user-1"); err == nil {
		t.Fatal("expected cancelling an already-terminal execution to error")
	}
}

func TestService_GetExecutionEvents_RecordsNodeLifecycle(t *testing.T) {
	svc, st := newTestService(t)
	st.SeedWorkflow(passthroughWorkflow("wf-3"))

	execID, err := svc.StartExecution(context.Background(), "wf-3", "user-1", nil)
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	waitForTerminal(t, svc, execID)

	events := svc.GetExecutionEvents(execID, emit.HistoryFilter{})
	if len(events) == 0 {
		t.Fatal("expected at least one recorded event for the execution")
	}
	for _, e := range events {
		if e.RunID != execID {
			t.Fatalf("event run id %q does not match execution %q", e.RunID, execID)
		}
	}
}

func TestService_ValidateWorkflowData_ReportsErrors(t *testing.T) {
	svc, _ := newTestService(t)
	result, err := svc.ValidateWorkflowData(map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsValid {
		t.Fatal("expected an empty workflow to be invalid")
	}
}
