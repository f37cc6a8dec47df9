package api

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/agent"
	"github.com/flowforge/orchestrator/graph"
	"github.com/flowforge/orchestrator/graph/emit"
	"github.com/flowforge/orchestrator/graph/store"
	"github.com/flowforge/orchestrator/hub"
	"github.com/flowforge/orchestrator/validate"
)

// DefaultMaxConcurrentExecutions is spec §5's MAX_CONCURRENT_EXECUTIONS
// default: at most this many runs in flight system-wide; excess
// execute() calls block at the admission point (no queue eviction).
const DefaultMaxConcurrentExecutions = 100

// Service wires the engine, registry, store, and hub into the
// operations the HTTP/WebSocket handlers call. It owns the one
// system-wide execution admission semaphore spec §5 requires on top of
// the engine's own per-execution node concurrency limit.
type Service struct {
	engine      *graph.Engine
	registry    *agent.Registry
	builder     *agent.Builder
	store       store.Store
	hub         *hub.Hub
	hubRecorder *hub.Recorder
	events      *emit.BufferedEmitter
	knownKinds  map[string]bool
	admission   chan struct{}
}

// NewService builds the engine (wiring a fan-out recorder that writes
// through st and broadcasts through h, and a fan-out emitter that sends
// through emitter and into an in-memory per-execution event buffer
// GetExecutionEvents serves) and returns a ready Service.
// maxConcurrentExecutions <= 0 falls back to DefaultMaxConcurrentExecutions.
func NewService(registry *agent.Registry, st store.Store, h *hub.Hub, emitter emit.Emitter, maxConcurrentExecutions int, opts ...graph.Option) *Service {
	if maxConcurrentExecutions <= 0 {
		maxConcurrentExecutions = DefaultMaxConcurrentExecutions
	}
	knownKinds := make(map[string]bool, 7)
	for _, d := range registry.Descriptors() {
		knownKinds[d.Kind] = true
	}

	hubRecorder := hub.NewRecorder(h)
	recorder := newFanoutRecorder(store.NewRecorder(st), hubRecorder)
	events := emit.NewBufferedEmitter()
	engine := graph.New(newFanoutEmitter(emitter, events), recorder, opts...)

	return &Service{
		engine:      engine,
		registry:    registry,
		builder:     &agent.Builder{Registry: registry},
		store:       st,
		hub:         h,
		hubRecorder: hubRecorder,
		events:      events,
		knownKinds:  knownKinds,
		admission:   make(chan struct{}, maxConcurrentExecutions),
	}
}

// GetExecutionEvents returns the in-memory event history recorded for
// execID (spec §4.1's step-level observability events, distinct from
// the AgentLog rows the store persists), optionally filtered.
func (s *Service) GetExecutionEvents(execID string, filter emit.HistoryFilter) []emit.Event {
	return s.events.GetHistoryWithFilter(execID, filter)
}

// ValidateWorkflowData runs the validation service over a raw
// workflow_data map (spec §4.3, and the POST /workflows/validate /
// POST /workflows/{id}/validate endpoints).
func (s *Service) ValidateWorkflowData(data map[string]interface{}) (validate.Result, error) {
	nodes, edges, err := ParseWorkflowData(data)
	if err != nil {
		return validate.Result{}, err
	}
	return validate.Validate(nodes, edges, s.knownKinds), nil
}

// StartExecution creates a queued execution record and admits the
// workflow to run asynchronously, returning immediately with the new
// execution id (spec §6: POST /workflows/{id}/execute ->
// {execution_id, status: "queued", message}). The actual run happens
// in a background goroutine once a slot in the admission semaphore is
// free.
func (s *Service) StartExecution(ctx context.Context, workflowID, userID string, inputData map[string]interface{}) (string, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID, userID)
	if err != nil {
		return "", err
	}

	result, err := s.ValidateWorkflowData(wf.WorkflowData)
	if err != nil {
		return "", err
	}
	if !result.IsValid {
		return "", &ValidationFailedError{Result: result}
	}

	execID, err := s.store.CreateExecution(ctx, store.Execution{
		WorkflowID:  workflowID,
		UserID:      userID,
		Status:      "queued",
		TriggerType: "api",
		InputData:   inputData,
		StartedAt:   time.Now(),
	})
	if err != nil {
		return "", err
	}

	s.hubRecorder.BindExecution(execID, workflowID)

	go s.run(execID, workflowID, wf, inputData)

	return execID, nil
}

// run performs the admission wait and the actual engine.Execute call.
// It is started as its own goroutine by StartExecution so the HTTP
// handler can return "queued" without blocking on a free execution
// slot (spec §5: "excess execute() calls block at the admission
// point").
func (s *Service) run(execID, workflowID string, wf store.Workflow, inputData map[string]interface{}) {
	s.admission <- struct{}{}
	defer func() { <-s.admission }()

	ctx := context.Background()
	nodes, edges, err := ParseWorkflowData(wf.WorkflowData)
	if err != nil {
		s.failBeforeStart(ctx, execID, err)
		return
	}
	g, err := graph.BuildGraph(nodes, edges)
	if err != nil {
		s.failBeforeStart(ctx, execID, err)
		return
	}

	running := "running"
	_ = s.store.UpdateExecution(ctx, execID, store.ExecutionPatch{Status: &running})

	// The fan-out recorder passed to the engine (see NewService) already
	// persists the terminal status/error through store.Recorder and
	// broadcasts it through hub.Recorder as the engine observes
	// ExecutionFinished. graph.Recorder carries no final-state payload
	// though, so the output_data column is filled in here once Execute
	// returns, without touching the status/error columns the recorder
	// already wrote.
	finalState, _ := s.engine.Execute(ctx, execID, g, s.builder, inputData)
	_ = s.store.UpdateExecution(ctx, execID, store.ExecutionPatch{OutputData: finalState.Results})
}

func (s *Service) failBeforeStart(ctx context.Context, execID string, err error) {
	status := "failed"
	msg := err.Error()
	now := time.Now()
	_ = s.store.UpdateExecution(ctx, execID, store.ExecutionPatch{
		Status:       &status,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	})
	s.hubRecorder.ExecutionFinished(ctx, execID, "failed", err)
}

// CancelExecution requests cancellation of an in-flight run (spec §6:
// POST /executions/{id}/cancel). Engine.Cancel is a no-op if the
// execution already finished or never started; the caller distinguishes
// "not found" by first checking the store record.
func (s *Service) CancelExecution(ctx context.Context, execID, userID string) error {
	exec, err := s.store.GetExecution(ctx, execID, userID)
	if err != nil {
		return err
	}
	if exec.Status != "queued" && exec.Status != "running" {
		return fmt.Errorf("execution %s is not cancellable in status %q", execID, exec.Status)
	}
	s.engine.Cancel(execID)
	return nil
}

// GetExecution fetches a single execution, scoped to its owner.
func (s *Service) GetExecution(ctx context.Context, execID, userID string) (store.Execution, error) {
	return s.store.GetExecution(ctx, execID, userID)
}

// ListExecutions fetches a paged, filtered set of executions.
func (s *Service) ListExecutions(ctx context.Context, filter store.ExecutionFilter) ([]store.Execution, error) {
	return s.store.ListExecutions(ctx, filter)
}

// RunMonitor delegates to the engine's stale-execution sweep (spec
// §4.1's monitor loop). Blocks until ctx is done; callers run it in
// its own goroutine.
func (s *Service) RunMonitor(ctx context.Context, logger graph.MonitorLogger) {
	s.engine.RunMonitor(ctx, logger)
}

// ValidationFailedError wraps a failing validate.Result so handlers can
// surface it as a 400 with the full errors/warnings payload rather than
// a bare message.
type ValidationFailedError struct {
	Result validate.Result
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("workflow failed validation: %v", e.Result.Errors)
}
