package api

import (
	"context"
	"time"

	"github.com/flowforge/orchestrator/graph"
)

// fanoutRecorder dispatches every graph.Recorder callback to both the
// store-backed recorder (persistence) and the hub-backed recorder
// (live broadcast to connected collaborators), so the engine only ever
// needs to know about one graph.Recorder.
type fanoutRecorder struct {
	recorders []graph.Recorder
}

func newFanoutRecorder(rs ...graph.Recorder) *fanoutRecorder {
	return &fanoutRecorder{recorders: rs}
}

func (f *fanoutRecorder) NodeStarted(ctx context.Context, execID, nodeID string) {
	for _, r := range f.recorders {
		r.NodeStarted(ctx, execID, nodeID)
	}
}

func (f *fanoutRecorder) NodeCompleted(ctx context.Context, execID, nodeID string, output map[string]interface{}, dur time.Duration) {
	for _, r := range f.recorders {
		r.NodeCompleted(ctx, execID, nodeID, output, dur)
	}
}

func (f *fanoutRecorder) NodeSkipped(ctx context.Context, execID, nodeID string) {
	for _, r := range f.recorders {
		r.NodeSkipped(ctx, execID, nodeID)
	}
}

func (f *fanoutRecorder) NodeFailed(ctx context.Context, execID, nodeID string, execErr error, dur time.Duration) {
	for _, r := range f.recorders {
		r.NodeFailed(ctx, execID, nodeID, execErr, dur)
	}
}

func (f *fanoutRecorder) ExecutionFinished(ctx context.Context, execID, status string, execErr error) {
	for _, r := range f.recorders {
		r.ExecutionFinished(ctx, execID, status, execErr)
	}
}

var _ graph.Recorder = (*fanoutRecorder)(nil)
