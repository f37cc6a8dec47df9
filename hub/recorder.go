package hub

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/orchestrator/graph"
)

// Recorder adapts a Hub to graph.Recorder, re-broadcasting node
// lifecycle events to a workflow's live subscribers (spec §4.4: the
// hub "re-broadcast[s] engine-originated events"). graph.Recorder's
// methods are keyed by execution id, not workflow id, so the adapter
// keeps a small execID -> workflowID binding set by the caller at
// execution start (cmd/server knows the workflow before it calls
// engine.Execute) and cleared on ExecutionFinished.
type Recorder struct {
	hub *Hub

	mu       sync.Mutex
	bindings map[string]string // execID -> workflowID
}

// NewRecorder creates a Recorder broadcasting through hub.
func NewRecorder(h *Hub) *Recorder {
	return &Recorder{hub: h, bindings: make(map[string]string)}
}

// BindExecution associates an execution id with the workflow id it
// belongs to, so subsequent lifecycle callbacks know where to
// broadcast. Call before starting the execution.
func (r *Recorder) BindExecution(execID, workflowID string) {
	r.mu.Lock()
	r.bindings[execID] = workflowID
	r.mu.Unlock()
}

func (r *Recorder) workflowFor(execID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.bindings[execID]
	return wf, ok
}

func (r *Recorder) NodeStarted(_ context.Context, execID, nodeID string) {
	wf, ok := r.workflowFor(execID)
	if !ok {
		return
	}
	r.hub.SendExecutionUpdate(wf, execID, map[string]interface{}{
		"type":    "node_started",
		"node_id": nodeID,
	})
}

func (r *Recorder) NodeCompleted(_ context.Context, execID, nodeID string, output map[string]interface{}, dur time.Duration) {
	wf, ok := r.workflowFor(execID)
	if !ok {
		return
	}
	r.hub.SendExecutionUpdate(wf, execID, map[string]interface{}{
		"type":        "node_completed",
		"node_id":     nodeID,
		"output":      output,
		"duration_ms": dur.Milliseconds(),
	})
}

func (r *Recorder) NodeSkipped(_ context.Context, execID, nodeID string) {
	wf, ok := r.workflowFor(execID)
	if !ok {
		return
	}
	r.hub.SendExecutionUpdate(wf, execID, map[string]interface{}{
		"type":    "node_skipped",
		"node_id": nodeID,
	})
}

func (r *Recorder) NodeFailed(_ context.Context, execID, nodeID string, execErr error, dur time.Duration) {
	wf, ok := r.workflowFor(execID)
	if !ok {
		return
	}
	r.hub.SendExecutionUpdate(wf, execID, map[string]interface{}{
		"type":        "node_failed",
		"node_id":     nodeID,
		"error":       execErr.Error(),
		"duration_ms": dur.Milliseconds(),
	})
}

func (r *Recorder) ExecutionFinished(_ context.Context, execID, status string, execErr error) {
	wf, ok := r.workflowFor(execID)
	if ok {
		update := map[string]interface{}{
			"type":   "execution_" + status,
			"status": status,
		}
		if execErr != nil {
			update["error"] = execErr.Error()
		}
		r.hub.SendExecutionUpdate(wf, execID, update)
	}

	r.mu.Lock()
	delete(r.bindings, execID)
	r.mu.Unlock()
}

var _ graph.Recorder = (*Recorder)(nil)
