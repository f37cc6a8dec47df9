package store

import (
	"context"
	"testing"
)

var _ Store = (*MemStore)(nil)
var _ Store = (*SQLiteStore)(nil)
var _ Store = (*MySQLStore)(nil)

func TestMemStore_CreateGetExecution(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	id, err := s.CreateExecution(ctx, Execution{
		WorkflowID:  "wf-1",
		UserID:      "user-1",
		Status:      "queued",
		TriggerType: "manual",
		InputData:   map[string]interface{}{"x": 1.0},
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	got, err := s.GetExecution(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != "queued" {
		t.Fatalf("expected status queued, got %q", got.Status)
	}

	if _, err := s.GetExecution(ctx, id, "someone-else"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}
}

func TestMemStore_UpdateExecutionPatch(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	id, err := s.CreateExecution(ctx, Execution{WorkflowID: "wf-1", UserID: "u1", Status: "queued", TriggerType: "manual"})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	status := "running"
	if err := s.UpdateExecution(ctx, id, ExecutionPatch{
		Status:     &status,
		AppendLogs: []ProgressRecord{{Type: "execution_running"}},
	}); err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}

	status = "completed"
	if err := s.UpdateExecution(ctx, id, ExecutionPatch{
		Status:     &status,
		OutputData: map[string]interface{}{"result": "ok"},
		AppendLogs: []ProgressRecord{{Type: "execution_completed"}},
	}); err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}

	got, err := s.GetExecution(ctx, id, "u1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	if len(got.Logs) != 2 {
		t.Fatalf("expected 2 appended log entries, got %d", len(got.Logs))
	}
	if got.OutputData["result"] != "ok" {
		t.Fatalf("expected output_data to persist, got %#v", got.OutputData)
	}

	if err := s.UpdateExecution(ctx, "does-not-exist", ExecutionPatch{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown execution id, got %v", err)
	}
}

func TestMemStore_ListExecutionsFiltersAndPaginates(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.CreateExecution(ctx, Execution{WorkflowID: "wf-1", UserID: "u1", Status: "completed", TriggerType: "manual"}); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
	}
	if _, err := s.CreateExecution(ctx, Execution{WorkflowID: "wf-2", UserID: "u1", Status: "completed", TriggerType: "manual"}); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	all, err := s.ListExecutions(ctx, ExecutionFilter{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 executions for wf-1, got %d", len(all))
	}

	paged, err := s.ListExecutions(ctx, ExecutionFilter{WorkflowID: "wf-1", Limit: 2})
	if err != nil {
		t.Fatalf("ListExecutions paged: %v", err)
	}
	if len(paged) != 2 {
		t.Fatalf("expected page of 2, got %d", len(paged))
	}
}

func TestMemStore_GetWorkflowScopedToOwner(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	s.SeedWorkflow(Workflow{ID: "wf-1", UserID: "owner", Name: "demo"})

	wf, err := s.GetWorkflow(ctx, "wf-1", "owner")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if wf.Name != "demo" {
		t.Fatalf("unexpected workflow name: %q", wf.Name)
	}

	if _, err := s.GetWorkflow(ctx, "wf-1", "intruder"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}
}

func TestMemStore_AppendAgentLog(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	if err := s.AppendAgentLog(ctx, AgentLog{ExecutionID: "exec-1", AgentKind: "http_caller", Status: "completed"}); err != nil {
		t.Fatalf("AppendAgentLog: %v", err)
	}
	if len(s.agentLogs) != 1 {
		t.Fatalf("expected 1 agent log, got %d", len(s.agentLogs))
	}
}
