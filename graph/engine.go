// Package graph provides the core DAG execution engine.
package graph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowforge/orchestrator/graph/emit"
)

// NodeBuilder turns a workflow-defined node into an executable Node.
// Implemented outside this package (by the agent dispatch layer) so the
// engine stays agnostic of agent_kind, LLM providers, and the rest of
// the domain-specific node logic — the same separation the teacher
// draws between Node[S] and its caller-supplied implementations.
type NodeBuilder interface {
	Build(n WorkflowNode) (Node, error)
}

// Recorder persists execution/node-run status transitions as the
// engine observes them. Implemented by the store package's adapter over
// its narrow metadata-store interface (spec §4.5); kept separate from
// that interface so graph never imports store.
type Recorder interface {
	NodeStarted(ctx context.Context, execID, nodeID string)
	NodeCompleted(ctx context.Context, execID, nodeID string, output map[string]interface{}, dur time.Duration)
	NodeFailed(ctx context.Context, execID, nodeID string, execErr error, dur time.Duration)
	NodeSkipped(ctx context.Context, execID, nodeID string)
	ExecutionFinished(ctx context.Context, execID, status string, execErr error)
}

// Engine runs workflow DAGs to completion, dispatching ready nodes
// (respecting join semantics: a node becomes ready only once every
// predecessor has completed), merging their deltas into one
// ExecutionState, and aborting in-flight siblings on the first failure.
type Engine struct {
	opts     Options
	emitter  emit.Emitter
	recorder Recorder

	mu       sync.Mutex
	running  map[string]*runningExecution
	inflight int64
}

type runningExecution struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// New constructs an Engine. emitter may be nil (events are dropped);
// recorder may be nil (no persistence side effects, useful for tests).
func New(emitter emit.Emitter, recorder Recorder, opts ...Option) *Engine {
	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}
	return &Engine{
		opts:     cfg,
		emitter:  emitter,
		recorder: recorder,
		running:  make(map[string]*runningExecution),
	}
}

func (e *Engine) emit(execID string, step int, nodeID, msg string, meta map[string]interface{}) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: execID, Step: step, NodeID: nodeID, Msg: msg, Meta: meta})
}

// Cancel stops an in-flight execution started via Execute. It is safe
// to call Cancel for an execID that has already finished or was never
// started; both are no-ops.
func (e *Engine) Cancel(execID string) {
	e.mu.Lock()
	re, ok := e.running[execID]
	e.mu.Unlock()
	if ok {
		re.cancel()
	}
}

// StaleExecutions returns the IDs of in-flight executions that started
// more than maxAge ago, for monitor.go's periodic sweep.
func (e *Engine) StaleExecutions(maxAge time.Duration) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var stale []string
	cutoff := time.Now().Add(-maxAge)
	for id, re := range e.running {
		if re.startedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// dispatchState tracks one Execute call's in-flight bookkeeping.
type dispatchState struct {
	mu        sync.Mutex
	state     ExecutionState
	completed map[string]bool
	skipped   map[string]bool             // nodes pruned by condition routing, never dispatched
	fired     map[string]map[string]bool // fromNodeID -> successors actually routed to
	failed    error
	failedAt  string
	step      int
	resolved  int // len(completed) + len(skipped); dispatch ends once this reaches len(graph.Nodes)
	total     int

	// dequeueCancel unblocks the dispatch loop's Frontier.Dequeue once
	// every node has resolved (run or been pruned) and nothing further
	// will ever be enqueued. It cancels a context derived from, but
	// distinct from, the execution's real ctx — so the dispatch loop can
	// tell "finished" apart from "cancelled" by checking ctx.Err().
	dequeueCancel context.CancelFunc
}

// nextStep returns a monotonically increasing step counter shared
// across entry-point enqueues and successor enqueues, used only for
// deterministic Frontier dispatch ordering and event/log sequencing.
func (ds *dispatchState) nextStep() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.step++
	return ds.step
}

// Execute runs the workflow graph g to completion starting from input,
// returning the final merged ExecutionState. It fails with a
// Cancelled EngineError if ctx is cancelled or Cancel(execID) is
// called, and with the first node's error (wrapped, Code
// CodeAgentFailure unless the node itself set a more specific Code) if
// any node fails — whichever triggers first aborts every other running
// node via context cancellation of ctx.
func (e *Engine) Execute(ctx context.Context, execID string, g *DepGraph, nb NodeBuilder, input map[string]interface{}) (ExecutionState, error) {
	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.running[execID] = &runningExecution{cancel: cancel, startedAt: time.Now()}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, execID)
		e.mu.Unlock()
		cancel()
	}()

	dequeueCtx, dequeueCancel := context.WithCancel(ctx)
	defer dequeueCancel()

	ds := &dispatchState{
		state:         NewExecutionState(input),
		completed:     make(map[string]bool, len(g.Nodes)),
		skipped:       make(map[string]bool, len(g.Nodes)),
		fired:         make(map[string]map[string]bool, len(g.Nodes)),
		total:         len(g.Nodes),
		dequeueCancel: dequeueCancel,
	}

	frontier := NewFrontier(e.opts.QueueDepth)
	sem := make(chan struct{}, maxInt(e.opts.MaxConcurrentNodes, 1))
	var wg sync.WaitGroup

	enqueue := func(nodeID string) error {
		return enqueueWithTimeout(ctx, frontier, WorkItem{NodeID: nodeID, Step: ds.nextStep(), State: ds.snapshotState()}, e.opts.BackpressureTimeout)
	}

	for _, id := range g.EntryPoints {
		if err := enqueue(id); err != nil {
			return ds.state, &EngineError{Message: "failed to enqueue entry node", Code: CodeInternal, NodeID: id, Cause: err}
		}
	}

	if ds.total == 0 {
		return e.finish(ctx, execID, ds, nil)
	}

	// Terminate once every node has resolved (completed or been pruned by
	// condition/terminal routing) rather than counting dequeues against
	// totalNodes: a pruned branch's nodes are never enqueued, so that
	// count could never be reached and Dequeue would block until the
	// wall-clock budget force-cancels the run. dequeueCancel (called from
	// runNode once ds.resolved reaches ds.total) unblocks Dequeue the
	// instant nothing more can ever be enqueued.
	dispatched := 0
	for {
		item, err := frontier.Dequeue(dequeueCtx)
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return e.finish(ctx, execID, ds, wrapCancellation(ctx.Err()))
			}
			return e.finish(ctx, execID, ds, nil)
		}
		if e.opts.Metrics != nil {
			e.opts.Metrics.UpdateQueueDepth(frontier.Len())
		}
		dispatched++
		if e.opts.MaxSteps > 0 && dispatched > e.opts.MaxSteps {
			cancel()
			wg.Wait()
			return e.finish(ctx, execID, ds, &EngineError{Message: ErrMaxStepsExceeded.Error(), Code: CodeMaxStepsExceeded, NodeID: item.NodeID, Cause: ErrMaxStepsExceeded})
		}

		node, buildErr := nb.Build(g.Nodes[item.NodeID])
		if buildErr != nil {
			cancel()
			wg.Wait()
			return e.finish(ctx, execID, ds, buildErr)
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return e.finish(ctx, execID, ds, wrapCancellation(ctx.Err()))
		}

		wg.Add(1)
		go func(item WorkItem, node Node) {
			defer wg.Done()
			defer func() { <-sem }()
			e.runNode(ctx, execID, g, node, item, ds, frontier, cancel)
		}(item, node)
	}
}

func (ds *dispatchState) snapshotState() ExecutionState {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.state.snapshot()
}

// runNode executes one node (with retry/backoff and timeout), merges its
// delta, marks it completed, and enqueues any newly-ready successors.
func (e *Engine) runNode(
	ctx context.Context,
	execID string,
	g *DepGraph,
	node Node,
	item WorkItem,
	ds *dispatchState,
	frontier *Frontier,
	cancel context.CancelFunc,
) {
	if ctx.Err() != nil {
		return
	}

	nodeID := item.NodeID
	e.emit(execID, item.Step, nodeID, "node_start", nil)
	if e.recorder != nil {
		e.recorder.NodeStarted(ctx, execID, nodeID)
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.UpdateInflightNodes(int(atomic.AddInt64(&e.inflight, 1)))
		defer func() {
			e.opts.Metrics.UpdateInflightNodes(int(atomic.AddInt64(&e.inflight, -1)))
		}()
	}

	var policy *NodePolicy
	if pp, ok := node.(PolicyProvider); ok {
		p := pp.Policy()
		policy = &p
	}

	started := time.Now()
	result, runErr := e.runWithRetry(ctx, node, execID, nodeID, item.State, policy)
	dur := time.Since(started)

	if e.opts.Metrics != nil {
		status := "success"
		if runErr != nil {
			status = "error"
		}
		e.opts.Metrics.RecordStepLatency(execID, nodeID, dur, status)
	}

	if runErr != nil && ctx.Err() != nil {
		// The execution was cancelled or aborted while this node ran: the
		// node is recorded as skipped, not as a failure of its own.
		e.emit(execID, item.Step, nodeID, "node_skipped", map[string]interface{}{"reason": "execution cancelled"})
		if e.recorder != nil {
			e.recorder.NodeSkipped(ctx, execID, nodeID)
		}
		return
	}
	if runErr != nil {
		e.emit(execID, item.Step, nodeID, "node_error", map[string]interface{}{"error": runErr.Error()})
		if e.recorder != nil {
			e.recorder.NodeFailed(ctx, execID, nodeID, runErr, dur)
		}
		ds.mu.Lock()
		if ds.failed == nil {
			ds.failed = runErr
			ds.failedAt = nodeID
		}
		ds.mu.Unlock()
		cancel()
		return
	}

	ds.mu.Lock()
	ds.state = MergeState(ds.state, result.Delta)
	ds.completed[nodeID] = true
	fired := fireSet(g, nodeID, result.Route)
	ds.fired[nodeID] = fired
	ready := readySuccessors(g, ds, nodeID)
	newlySkipped := resolveSkips(g, ds, nodeID)
	ds.resolved += 1 + len(newlySkipped)
	done := ds.resolved >= ds.total
	ds.mu.Unlock()

	e.emit(execID, item.Step, nodeID, "node_complete", map[string]interface{}{"duration_ms": dur.Milliseconds()})
	if e.recorder != nil {
		e.recorder.NodeCompleted(ctx, execID, nodeID, result.Delta.Results, dur)
	}
	for _, skippedID := range newlySkipped {
		e.emit(execID, item.Step, skippedID, "node_skipped", map[string]interface{}{"reason": "unreachable: predecessor routed elsewhere"})
		if e.recorder != nil {
			e.recorder.NodeSkipped(ctx, execID, skippedID)
		}
	}

	for _, succ := range ready {
		if ctx.Err() != nil {
			return
		}
		succItem := WorkItem{NodeID: succ, Step: ds.nextStep(), State: ds.snapshotState()}
		if err := enqueueWithTimeout(ctx, frontier, succItem, e.opts.BackpressureTimeout); err != nil {
			if ctx.Err() == nil {
				ds.mu.Lock()
				if ds.failed == nil {
					ds.failed = &EngineError{Message: "failed to enqueue successor node", Code: CodeInternal, NodeID: succ, Cause: err}
					ds.failedAt = succ
				}
				ds.mu.Unlock()
				cancel()
			}
			return
		}
	}

	if done {
		ds.dequeueCancel()
	}
}

// resolveSkips walks the just-completed node's successors, marking as
// skipped any node that can now never become ready: a node is doomed the
// moment any one of its predecessors has completed without firing to it
// (readySuccessors requires every predecessor to have fired), regardless
// of whether its other predecessors have resolved yet. Skipping cascades
// recursively, since a skipped node fires to none of its own successors.
// Caller must hold ds.mu.
func resolveSkips(g *DepGraph, ds *dispatchState, startNodeID string) []string {
	var newlySkipped []string
	queue := []string{startNodeID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for succ := range g.Successors[cur] {
			if ds.completed[succ] || ds.skipped[succ] {
				continue
			}
			doomed := false
			for pred := range g.Predecessors[succ] {
				resolved := ds.completed[pred] || ds.skipped[pred]
				if resolved && !ds.fired[pred][succ] {
					doomed = true
					break
				}
			}
			if !doomed {
				continue
			}
			ds.skipped[succ] = true
			ds.fired[succ] = map[string]bool{}
			newlySkipped = append(newlySkipped, succ)
			queue = append(queue, succ)
		}
	}
	return newlySkipped
}

// fireSet computes which successors a completed node actually routed
// to: Route.Terminal fires none, a non-empty Route.To fires only that
// target (condition-node branching), and the zero value fires every
// graph successor (ordinary join-DAG fan-out).
func fireSet(g *DepGraph, nodeID string, route Next) map[string]bool {
	fired := make(map[string]bool)
	if route.Terminal {
		return fired
	}
	if route.To != "" {
		if g.Successors[nodeID][route.To] {
			fired[route.To] = true
		}
		return fired
	}
	for succ := range g.Successors[nodeID] {
		fired[succ] = true
	}
	return fired
}

// readySuccessors returns the successors of nodeID that have just
// become ready: every predecessor completed and routed to them.
// Caller must hold ds.mu.
func readySuccessors(g *DepGraph, ds *dispatchState, nodeID string) []string {
	var ready []string
	for succ := range g.Successors[nodeID] {
		if ds.completed[succ] {
			continue
		}
		allSatisfied := true
		for pred := range g.Predecessors[succ] {
			if !ds.completed[pred] || !ds.fired[pred][succ] {
				allSatisfied = false
				break
			}
		}
		if allSatisfied {
			ready = append(ready, succ)
		}
	}
	return ready
}

// finish finalizes an Execute call: records the terminal status and
// returns the appropriate error.
func (e *Engine) finish(ctx context.Context, execID string, ds *dispatchState, extra error) (ExecutionState, error) {
	ds.mu.Lock()
	state := ds.state
	failed := ds.failed
	failedAt := ds.failedAt
	ds.mu.Unlock()

	// A node failure cancels ctx, so the dispatch loop reports a
	// cancellation; the node's own error is the one returned.
	if extra == nil || (failed != nil && isCancelled(extra)) {
		extra = failed
	}

	if extra != nil {
		status := "failed"
		if isCancelled(extra) {
			status = "cancelled"
		}
		if e.recorder != nil {
			e.recorder.ExecutionFinished(ctx, execID, status, extra)
		}
		if ee, ok := extra.(*EngineError); ok {
			return state, ee
		}
		code := CodeAgentFailure
		if status == "cancelled" {
			code = CodeCancelled
		}
		return state, &EngineError{Message: extra.Error(), Code: code, NodeID: failedAt, Cause: extra}
	}

	if e.recorder != nil {
		e.recorder.ExecutionFinished(ctx, execID, "completed", nil)
	}
	return state, nil
}

func isCancelled(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code == CodeCancelled {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)
}

func wrapCancellation(err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Message: "execution cancelled", Code: CodeCancelled, Cause: err}
}

// runWithRetry executes a node, retrying on policy-deemed-retryable
// errors with exponential backoff, bounded by RetryPolicy.MaxAttempts.
func (e *Engine) runWithRetry(ctx context.Context, node Node, execID, nodeID string, state ExecutionState, policy *NodePolicy) (NodeResult, error) {
	var rp *RetryPolicy
	if policy != nil {
		rp = policy.RetryPolicy
	}
	maxAttempts := 1
	if rp != nil && rp.MaxAttempts > 0 {
		maxAttempts = rp.MaxAttempts
	}

	var lastResult NodeResult
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return lastResult, ctx.Err()
		}
		result, err := executeNodeWithTimeout(ctx, node, nodeID, state, policy, e.opts.DefaultNodeTimeout)
		if err == nil && result.Err == nil {
			return result, nil
		}
		lastResult = result
		if err != nil {
			lastErr = err
		} else {
			lastErr = result.Err
		}

		if rp == nil || rp.Retryable == nil || !rp.Retryable(lastErr) || attempt == maxAttempts-1 {
			return lastResult, lastErr
		}
		if e.opts.Metrics != nil {
			e.opts.Metrics.IncrementRetries(execID, nodeID, "retryable_error")
		}
		delay := computeBackoff(attempt, rp.BaseDelay, rp.MaxDelay, nil)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastResult, ctx.Err()
		}
	}
	return lastResult, lastErr
}

func enqueueWithTimeout(ctx context.Context, f *Frontier, item WorkItem, timeout time.Duration) error {
	if timeout <= 0 {
		return f.Enqueue(ctx, item)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := f.Enqueue(tctx, item); err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			return ErrBackpressureTimeout
		}
		return err
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
