package graph

import "errors"

// Error kinds from spec §7's taxonomy. These are carried as
// EngineError.Code values rather than distinct Go types, so the engine,
// agent layer, and api package can share one switch-on-Code convention
// (spec §9's "no inheritance, shared helper module" note, applied to
// errors as well as nodes).
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidWorkflow  = "INVALID_WORKFLOW"
	CodeUnknownAgent     = "UNKNOWN_AGENT"
	CodeAgentFailure     = "AGENT_FAILURE"
	CodeCancelled        = "CANCELLED"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL"
	CodeMaxStepsExceeded = "MAX_STEPS_EXCEEDED"
	CodeNodeTimeout      = "NODE_TIMEOUT"
)

// EngineError is the engine's structured error type. A nil Cause and
// empty NodeID are both valid: EngineError is used for both
// workflow-level failures (InvalidWorkflow, MaxStepsExceeded) and
// per-node failures.
type EngineError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.NodeID != "" {
		return e.Code + ": " + e.Message + " (node " + e.NodeID + ")"
	}
	return e.Code + ": " + e.Message
}

func (e *EngineError) Unwrap() error { return e.Cause }

// ErrCancelled is returned by a node or by Execute when cancellation was
// observed — via Cancel(), the monitor loop's stale-execution sweep, or
// a sibling node's failure. Per spec §4.1/§7, a Cancelled error is never
// persisted as a node failure: the owning execution is marked
// cancelled, not failed.
var ErrCancelled = errors.New("execution cancelled")

// ErrInvalidRetryPolicy indicates a RetryPolicy's fields are internally
// inconsistent (MaxAttempts < 1, or MaxDelay < BaseDelay).
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrMaxAttemptsExceeded indicates a node's RetryPolicy.MaxAttempts was
// exhausted without a successful execution.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// ErrBackpressureTimeout indicates the frontier's bounded queue stayed
// full longer than Options.BackpressureTimeout.
var ErrBackpressureTimeout = errors.New("backpressure timeout: frontier queue full")

// ErrMaxStepsExceeded indicates execution reached Options.MaxSteps
// without every node completing. Present mainly as a loop-safety net;
// ordinary DAGs (no node-level looping) terminate long before this.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")
