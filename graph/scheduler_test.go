package graph

import (
	"context"
	"testing"
)

func TestBuildGraph_EntryPointsAndJoin(t *testing.T) {
	nodes := []WorkflowNode{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	edges := []Edge{
		{From: "a", To: "c"},
		{From: "b", To: "c"},
		{From: "c", To: "d"},
	}

	g, err := BuildGraph(nodes, edges)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(g.EntryPoints) != 2 {
		t.Fatalf("expected 2 entry points, got %d: %v", len(g.EntryPoints), g.EntryPoints)
	}
	if len(g.Predecessors["c"]) != 2 {
		t.Errorf("expected node c to have 2 predecessors, got %d", len(g.Predecessors["c"]))
	}
	if !g.Successors["c"]["d"] {
		t.Errorf("expected c -> d successor edge")
	}
}

func TestBuildGraph_EmptyNodeSet(t *testing.T) {
	_, err := BuildGraph(nil, nil)
	if err == nil {
		t.Fatal("expected error for empty node set")
	}
	if ee, ok := err.(*EngineError); !ok || ee.Code != CodeInvalidWorkflow {
		t.Errorf("expected InvalidWorkflow EngineError, got %v", err)
	}
}

func TestBuildGraph_UnknownEdgeTarget(t *testing.T) {
	nodes := []WorkflowNode{{ID: "a"}}
	edges := []Edge{{From: "a", To: "missing"}}

	_, err := BuildGraph(nodes, edges)
	if err == nil {
		t.Fatal("expected error for edge referencing unknown node")
	}
}

func TestBuildGraph_CycleDetected(t *testing.T) {
	nodes := []WorkflowNode{{ID: "a"}, {ID: "b"}}
	edges := []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "a"},
	}

	_, err := BuildGraph(nodes, edges)
	if err == nil {
		t.Fatal("expected error for cyclic graph")
	}
}

func TestBuildGraph_NoEntryPoint(t *testing.T) {
	// Every node has a predecessor via the cycle, but cycle detection
	// runs first; construct a graph where the cycle check alone would
	// not catch a disconnected no-entry component is not possible for
	// an acyclic graph, so this exercises the cycle path instead.
	nodes := []WorkflowNode{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	edges := []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
		{From: "c", To: "a"},
	}
	_, err := BuildGraph(nodes, edges)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFrontier_EnqueueDequeueOrdering(t *testing.T) {
	f := NewFrontier(8)
	ctx := context.Background()

	items := []WorkItem{
		{NodeID: "b", Step: 1},
		{NodeID: "a", Step: 1},
		{NodeID: "z", Step: 0},
	}
	for _, it := range items {
		if err := f.Enqueue(ctx, it); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	want := []string{"z", "a", "b"}
	for _, w := range want {
		got, err := f.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}
		if got.NodeID != w {
			t.Errorf("expected %q, got %q", w, got.NodeID)
		}
	}
}
