package store

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/orchestrator/graph"
)

// Recorder adapts a Store into graph.Recorder: every node-level and
// execution-level transition the engine observes is translated into an
// AppendAgentLog or UpdateExecution call. Kept in this package (rather
// than graph) so graph never imports store (see graph.Recorder's doc
// comment).
type Recorder struct {
	store Store

	mu        sync.Mutex
	started   map[string]time.Time // execID+nodeID -> start time, for duration-free NodeStarted calls
	stepIndex map[string]int       // execID -> next step_index
}

// NewRecorder builds a Recorder over store.
func NewRecorder(s Store) *Recorder {
	return &Recorder{
		store:     s,
		started:   make(map[string]time.Time),
		stepIndex: make(map[string]int),
	}
}

func (r *Recorder) NodeStarted(ctx context.Context, execID, nodeID string) {
	r.mu.Lock()
	r.started[execID+"/"+nodeID] = time.Now()
	r.mu.Unlock()

	_ = r.store.AppendAgentLog(ctx, AgentLog{
		ExecutionID:      execID,
		AgentKind:        nodeID,
		AgentDisplayName: nodeID,
		StepIndex:        r.nextStep(execID),
		Status:           "started",
		StartedAt:        time.Now(),
	})
}

func (r *Recorder) NodeCompleted(ctx context.Context, execID, nodeID string, output map[string]interface{}, dur time.Duration) {
	now := time.Now()
	_ = r.store.AppendAgentLog(ctx, AgentLog{
		ExecutionID:      execID,
		AgentKind:        nodeID,
		AgentDisplayName: nodeID,
		StepIndex:        r.nextStep(execID),
		Status:           "completed",
		OutputData:       output,
		ExecutionTimeMS:  dur.Milliseconds(),
		StartedAt:        now.Add(-dur),
		CompletedAt:      &now,
	})

	_ = r.store.UpdateExecution(ctx, execID, ExecutionPatch{
		AppendLogs: []ProgressRecord{{
			Timestamp: now,
			NodeID:    nodeID,
			Level:     "info",
			Type:      "node_completed",
			Result:    output,
		}},
	})
}

func (r *Recorder) NodeSkipped(ctx context.Context, execID, nodeID string) {
	now := time.Now()
	_ = r.store.AppendAgentLog(ctx, AgentLog{
		ExecutionID:      execID,
		AgentKind:        nodeID,
		AgentDisplayName: nodeID,
		StepIndex:        r.nextStep(execID),
		Status:           "skipped",
		StartedAt:        now,
		CompletedAt:      &now,
	})

	_ = r.store.UpdateExecution(ctx, execID, ExecutionPatch{
		AppendLogs: []ProgressRecord{{
			Timestamp: now,
			NodeID:    nodeID,
			Level:     "info",
			Type:      "node_skipped",
		}},
	})
}

func (r *Recorder) NodeFailed(ctx context.Context, execID, nodeID string, execErr error, dur time.Duration) {
	now := time.Now()
	msg := execErr.Error()
	_ = r.store.AppendAgentLog(ctx, AgentLog{
		ExecutionID:      execID,
		AgentKind:        nodeID,
		AgentDisplayName: nodeID,
		StepIndex:        r.nextStep(execID),
		Status:           "failed",
		ErrorMessage:     msg,
		ExecutionTimeMS:  dur.Milliseconds(),
		StartedAt:        now.Add(-dur),
		CompletedAt:      &now,
	})

	_ = r.store.UpdateExecution(ctx, execID, ExecutionPatch{
		AppendLogs: []ProgressRecord{{
			Timestamp: now,
			NodeID:    nodeID,
			Level:     "error",
			Type:      "node_failed",
			Error:     msg,
		}},
	})
}

func (r *Recorder) ExecutionFinished(ctx context.Context, execID, status string, execErr error) {
	now := time.Now()
	patch := ExecutionPatch{Status: &status, CompletedAt: &now}
	if execErr != nil {
		msg := execErr.Error()
		patch.ErrorMessage = &msg
	}
	patch.AppendLogs = []ProgressRecord{{
		Timestamp: now,
		Level:     "info",
		Type:      "execution_" + status,
	}}
	_ = r.store.UpdateExecution(ctx, execID, patch)

	r.mu.Lock()
	delete(r.stepIndex, execID)
	r.mu.Unlock()
}

func (r *Recorder) nextStep(execID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.stepIndex[execID]
	r.stepIndex[execID] = n + 1
	return n
}

var _ graph.Recorder = (*Recorder)(nil)
