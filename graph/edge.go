// Package graph implements the DAG scheduler and execution runtime: it
// parses workflow nodes/edges into a dependency graph, dispatches ready
// nodes (possibly in parallel), merges their results into a shared
// ExecutionState, persists status transitions through a Store, and
// streams progress through an emit.Emitter.
package graph

// Edge connects two nodes in the workflow graph (spec §3 "Edge").
// Edge.From must differ from Edge.To — acyclicity is enforced over the
// whole graph, not per edge, by BuildGraph.
type Edge struct {
	ID       string
	From     string
	To       string
	FromPort string
	ToPort   string

	// When is an optional predicate restricting whether this edge should
	// be treated as satisfied for routing purposes on condition nodes.
	// Ordinary agent/action/trigger nodes ignore it: they satisfy every
	// outgoing edge once they complete, per the DAG join-semantics in
	// spec §4.1. nil means unconditional.
	When Predicate
}

// Predicate evaluates state to decide whether a condition node's edge
// should be followed.
type Predicate func(state ExecutionState) bool
