package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore_CreateUpdateGetExecution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.SeedWorkflow(ctx, Workflow{
		ID: "wf-1", UserID: "u1", Name: "demo", Version: 1, Status: "published",
		WorkflowData: map[string]interface{}{"nodes": []interface{}{}}, ExecutionConfig: map[string]interface{}{},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("SeedWorkflow: %v", err)
	}

	wf, err := s.GetWorkflow(ctx, "wf-1", "u1")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if wf.Name != "demo" {
		t.Fatalf("unexpected name: %q", wf.Name)
	}

	id, err := s.CreateExecution(ctx, Execution{
		WorkflowID: "wf-1", UserID: "u1", Status: "queued", TriggerType: "manual",
		InputData: map[string]interface{}{"n": 5.0},
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	status := "completed"
	if err := s.UpdateExecution(ctx, id, ExecutionPatch{
		Status:     &status,
		OutputData: map[string]interface{}{"ok": true},
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
	if got.InputData["n"] != 5.0 {
		t.Fatalf("expected round-tripped input_data, got %#v", got.InputData)
	}
	if len(got.Logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(got.Logs))
	}
}

func TestSQLiteStore_AppendAgentLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.AppendAgentLog(ctx, AgentLog{
		ExecutionID: "exec-1", AgentKind: "llm_generator", AgentDisplayName: "Summarize",
		StepIndex: 0, Status: "completed", OutputData: map[string]interface{}{"text": "hi"},
		StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendAgentLog: %v", err)
	}
}

func TestSQLiteStore_GetExecutionNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	if _, err := s.GetExecution(context.Background(), "missing", ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
