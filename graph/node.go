package graph

import "context"

// Node represents a single vertex in a workflow DAG: an agent invocation,
// a condition check, a trigger, or an action. It receives the shared
// execution state and returns a NodeResult describing how that state
// changed and where (if anywhere) execution should continue.
//
// Nodes are dispatched by the Engine once every predecessor of the node
// has reached the completed state (see scheduler.go). A node never sees
// its predecessors run concurrently with itself.
type Node interface {
	// Run executes the node's logic with the given context and state.
	// The context is cancelled when the execution is cancelled or
	// aborted, and carries the node's timeout deadline (see timeout.go).
	Run(ctx context.Context, state ExecutionState) NodeResult
}

// NodeResult represents the output of a node execution.
type NodeResult struct {
	// Delta is the partial state update produced by this node. It is
	// merged into the running ExecutionState with MergeState.
	Delta ExecutionState

	// Route optionally overrides edge-based routing for this node. Most
	// DAG nodes have no explicit route: the engine instead advances every
	// successor whose predecessors have all completed. Route exists for
	// condition nodes that need to pick one of several outgoing edges
	// regardless of predicate evaluation.
	Route Next

	// Err contains any error that occurred during node execution. A
	// non-nil Err fails the owning node and aborts the execution.
	Err error
}

// Next specifies routing behavior that overrides the DAG's ordinary
// dependency-closure dispatch. Most nodes leave this zero-valued.
type Next struct {
	// To restricts traversal to a single named successor, skipping any
	// other outgoing edges. Used by condition nodes.
	To string

	// Terminal fires none of the node's successors: they are skipped, as
	// is every node downstream of a skipped node. Other branches of the
	// execution continue.
	Terminal bool
}

// Stop returns a Next that fires none of the node's successors (see
// Next.Terminal).
func Stop() Next { return Next{Terminal: true} }

// Goto returns a Next that restricts traversal to a single successor.
func Goto(nodeID string) Next { return Next{To: nodeID} }

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, state ExecutionState) NodeResult

// Run implements Node for NodeFunc.
func (f NodeFunc) Run(ctx context.Context, state ExecutionState) NodeResult {
	return f(ctx, state)
}

// NodeError represents an error that occurred during node execution,
// with enough structure for the engine to build a ProgressRecord and an
// AgentLog entry without re-parsing an opaque error string.
type NodeError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for error wrapping support.
func (e *NodeError) Unwrap() error { return e.Cause }
