package api

import "testing"

func TestParseWorkflowData_HappyPath(t *testing.T) {
	data := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{
				"id":    "n1",
				"kind":  "agent",
				"label": "Fetch",
				"position": map[string]interface{}{"x": 0.0, "y": 0.0},
				"data": map[string]interface{}{
					"agent_kind": "http_caller",
					"config":     map[string]interface{}{"url": "https://example.com"},
				},
			},
			map[string]interface{}{
				"id":   "n2",
				"kind": "agent",
				"data": map[string]interface{}{"agent_kind": "data_processor"},
			},
		},
		"edges": []interface{}{
			map[string]interface{}{
				"id":               "e1",
				"source_node_id":   "n1",
				"target_node_id":   "n2",
			},
		},
	}

	nodes, edges, err := ParseWorkflowData(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 || len(edges) != 1 {
		t.Fatalf("expected 2 nodes and 1 edge, got %d/%d", len(nodes), len(edges))
	}
	if nodes[0].ID != "n1" || nodes[0].Label != "Fetch" {
		t.Fatalf("unexpected node[0]: %+v", nodes[0])
	}
	if edges[0].From != "n1" || edges[0].To != "n2" {
		t.Fatalf("unexpected edge[0]: %+v", edges[0])
	}
}

func TestParseWorkflowData_LabelFallsBackToDataLabel(t *testing.T) {
	data := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{
				"id":   "n1",
				"kind": "agent",
				"data": map[string]interface{}{"label": "from data"},
			},
		},
	}
	nodes, _, err := ParseWorkflowData(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes[0].Label != "from data" {
		t.Fatalf("expected label fallback, got %q", nodes[0].Label)
	}
}

func TestParseWorkflowData_RejectsNonObjectNode(t *testing.T) {
	data := map[string]interface{}{
		"nodes": []interface{}{"not an object"},
	}
	if _, _, err := ParseWorkflowData(data); err == nil {
		t.Fatal("expected an error for a non-object node entry")
	}
}

func TestParseWorkflowData_RejectsNonObjectEdge(t *testing.T) {
	data := map[string]interface{}{
		"nodes": []interface{}{map[string]interface{}{"id": "n1"}},
		"edges": []interface{}{42},
	}
	if _, _, err := ParseWorkflowData(data); err == nil {
		t.Fatal("expected an error for a non-object edge entry")
	}
}

func TestParseWorkflowData_EmptyDataReturnsEmptySlices(t *testing.T) {
	nodes, edges, err := ParseWorkflowData(map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 0 || len(edges) != 0 {
		t.Fatalf("expected empty slices, got %d/%d", len(nodes), len(edges))
	}
}
