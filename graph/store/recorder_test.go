package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecorder_NodeLifecycleWritesAgentLogsAndProgress(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	execID, err := s.CreateExecution(ctx, Execution{WorkflowID: "wf-1", UserID: "u1", Status: "running", TriggerType: "manual"})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	r := NewRecorder(s)
	r.NodeStarted(ctx, execID, "node-a")
	r.NodeCompleted(ctx, execID, "node-a", map[string]interface{}{"ok": true}, 5*time.Millisecond)
	r.NodeFailed(ctx, execID, "node-b", errors.New("boom"), time.Millisecond)
	r.ExecutionFinished(ctx, execID, "failed", errors.New("node-b failed: boom"))

	if len(s.agentLogs) != 3 {
		t.Fatalf("expected 3 agent log rows (started/completed/failed), got %d", len(s.agentLogs))
	}

	got, err := s.GetExecution(ctx, execID, "u1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != "failed" {
		t.Fatalf("expected status failed, got %q", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatal("expected error_message to be set")
	}
	if len(got.Logs) != 3 {
		t.Fatalf("expected 3 progress records (completed/failed/finished), got %d", len(got.Logs))
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestRecorder_NodeSkippedWritesAgentLogAndProgress(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	execID, err := s.CreateExecution(ctx, Execution{WorkflowID: "wf-1", UserID: "u1", Status: "running", TriggerType: "manual"})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	r := NewRecorder(s)
	r.NodeStarted(ctx, execID, "branch-a")
	r.NodeCompleted(ctx, execID, "branch-a", nil, time.Millisecond)
	r.NodeSkipped(ctx, execID, "branch-b")
	r.ExecutionFinished(ctx, execID, "completed", nil)

	if len(s.agentLogs) != 3 {
		t.Fatalf("expected 3 agent log rows (started/completed/skipped), got %d", len(s.agentLogs))
	}
	if s.agentLogs[2].Status != "skipped" {
		t.Fatalf("expected last log status skipped, got %q", s.agentLogs[2].Status)
	}

	got, err := s.GetExecution(ctx, execID, "u1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	found := false
	for _, log := range got.Logs {
		if log.Type == "node_skipped" && log.NodeID == "branch-b" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a node_skipped progress record for branch-b")
	}
}
