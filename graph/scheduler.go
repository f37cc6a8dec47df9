package graph

import (
	"container/heap"
	"context"
	"sync"
)

// DepGraph is the dependency-closure view of a workflow's nodes/edges:
// for each node, the set of predecessors that must reach `completed`
// before the node becomes `ready`, and the set of successors to
// re-evaluate once the node itself completes. Grounded on the original
// Python execution_engine.py's _build_execution_graph.
type DepGraph struct {
	Nodes        map[string]WorkflowNode
	Predecessors map[string]map[string]bool
	Successors   map[string]map[string]bool
	EntryPoints  []string
}

// WorkflowNode is the Go realization of spec §3's Node: id, kind,
// opaque position, and a kind-specific data map (agent_kind, config,
// input_mapping, label, ...).
type WorkflowNode struct {
	ID       string
	Kind     string // "agent", "condition", "trigger", "action"
	Label    string
	Position map[string]interface{}
	Data     map[string]interface{}
}

// BuildGraph constructs the dependency graph from a node/edge list,
// failing with InvalidWorkflow if the node set is empty, an edge
// references an unknown node, or the graph contains a cycle (spec
// §4.1 "Graph construction").
func BuildGraph(nodes []WorkflowNode, edges []Edge) (*DepGraph, error) {
	if len(nodes) == 0 {
		return nil, &EngineError{Message: "workflow has no nodes", Code: CodeInvalidWorkflow}
	}

	g := &DepGraph{
		Nodes:        make(map[string]WorkflowNode, len(nodes)),
		Predecessors: make(map[string]map[string]bool, len(nodes)),
		Successors:   make(map[string]map[string]bool, len(nodes)),
	}

	for _, n := range nodes {
		if _, dup := g.Nodes[n.ID]; dup {
			return nil, &EngineError{Message: "duplicate node id: " + n.ID, Code: CodeInvalidWorkflow}
		}
		g.Nodes[n.ID] = n
		g.Predecessors[n.ID] = make(map[string]bool)
		g.Successors[n.ID] = make(map[string]bool)
	}

	for _, e := range edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return nil, &EngineError{Message: "edge references unknown source node: " + e.From, Code: CodeInvalidWorkflow}
		}
		if _, ok := g.Nodes[e.To]; !ok {
			return nil, &EngineError{Message: "edge references unknown target node: " + e.To, Code: CodeInvalidWorkflow}
		}
		if e.From == e.To {
			return nil, &EngineError{Message: "self-loop edge on node: " + e.From, Code: CodeInvalidWorkflow}
		}
		g.Predecessors[e.To][e.From] = true
		g.Successors[e.From][e.To] = true
	}

	if cyc := findCycle(g); cyc != "" {
		return nil, &EngineError{Message: "workflow graph contains a cycle at node: " + cyc, Code: CodeInvalidWorkflow}
	}

	for id := range g.Nodes {
		if len(g.Predecessors[id]) == 0 {
			g.EntryPoints = append(g.EntryPoints, id)
		}
	}
	if len(g.EntryPoints) == 0 {
		return nil, &EngineError{Message: "workflow has no entry point (every node has a predecessor)", Code: CodeInvalidWorkflow}
	}

	return g, nil
}

// FindCycle runs a depth-first search with a recursion stack, returning
// the ID of a node found to be part of a cycle, or "" if the graph is
// acyclic. Exported so the validation service can reuse the same
// cycle-detection pass BuildGraph uses internally, without needing a
// fully-built (and already-validated) graph to call it on.
func FindCycle(g *DepGraph) string {
	return findCycle(g)
}

// findCycle is the unexported implementation shared by BuildGraph and FindCycle.
func findCycle(g *DepGraph) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for succ := range g.Successors[id] {
			switch color[succ] {
			case gray:
				return succ
			case white:
				if cyc := visit(succ); cyc != "" {
					return cyc
				}
			}
		}
		color[id] = black
		return ""
	}

	for id := range g.Nodes {
		if color[id] == white {
			if cyc := visit(id); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

// WorkItem is a single schedulable dispatch of a node: the node to run,
// the step at which it was enqueued (for AgentLog.step_index / event
// ordering), and the state snapshot it should observe.
type WorkItem struct {
	NodeID  string
	Step    int
	State   ExecutionState
	Attempt int
}

// workHeap orders WorkItems for deterministic dispatch: by step, then
// lexicographically by node ID, so that two runs presented with the
// same ready set always start nodes in the same order even though they
// may finish in whatever order their I/O completes.
type workHeap []WorkItem

func (h workHeap) Len() int { return len(h) }
func (h workHeap) Less(i, j int) bool {
	if h[i].Step != h[j].Step {
		return h[i].Step < h[j].Step
	}
	return h[i].NodeID < h[j].NodeID
}
func (h workHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *workHeap) Push(x interface{}) { *h = append(*h, x.(WorkItem)) }
func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// Frontier is the bounded, ordered queue of ready-to-run nodes. It
// combines a priority heap (deterministic dispatch order) with a
// buffered channel (bounded capacity / backpressure), following the
// teacher graph/scheduler.go's Frontier shape, generalized from a
// per-workflow generic state type to the engine's single ExecutionState.
//
// When the channel is at capacity, Enqueue blocks until a Dequeue frees
// a slot, ctx is cancelled, or Options.BackpressureTimeout elapses.
type Frontier struct {
	mu       sync.Mutex
	heap     workHeap
	queue    chan struct{}
	capacity int
}

// NewFrontier creates a Frontier with the given bounded capacity.
func NewFrontier(capacity int) *Frontier {
	if capacity <= 0 {
		capacity = 1024
	}
	f := &Frontier{
		heap:     make(workHeap, 0),
		queue:    make(chan struct{}, capacity),
		capacity: capacity,
	}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds a work item, blocking if the queue is at capacity until
// ctx is done.
func (f *Frontier) Enqueue(ctx context.Context, item WorkItem) error {
	select {
	case f.queue <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	f.mu.Lock()
	heap.Push(&f.heap, item)
	f.mu.Unlock()
	return nil
}

// Dequeue removes and returns the highest-priority (lowest step, then
// lowest node ID) work item, blocking until one is available or ctx is
// done.
func (f *Frontier) Dequeue(ctx context.Context) (WorkItem, error) {
	var zero WorkItem
	select {
	case <-f.queue:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heap.Len() == 0 {
		return zero, context.Canceled
	}
	return heap.Pop(&f.heap).(WorkItem), nil
}

// Len reports the current queue depth.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}
