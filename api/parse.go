// Package api is the transport adapter (spec §6): it maps the
// versioned HTTP JSON API and WebSocket frames onto the execution
// engine, validation service, and collaboration hub. Grounded on the
// net/http + Go 1.22 method-pattern ServeMux style demonstrated by
// cklxx-elephant.ai's internal/delivery/server/http/router.go and the
// SWARM-INTELLIGENCE-NETWORK orchestrator service's main.go, rather
// than a web framework — neither gin nor any other router package
// appears actually imported anywhere in the retrieved corpus despite a
// few go.mod listings, so the framework-free idiom is what's grounded.
package api

import (
	"fmt"

	"github.com/flowforge/orchestrator/graph"
)

// ParseWorkflowData decodes a Workflow's stored workflow_data (spec §3:
// "the graph: nodes + edges + viewport") into the node/edge slices
// graph.BuildGraph and validate.Validate operate on.
func ParseWorkflowData(data map[string]interface{}) ([]graph.WorkflowNode, []graph.Edge, error) {
	rawNodes, _ := data["nodes"].([]interface{})
	rawEdges, _ := data["edges"].([]interface{})

	nodes := make([]graph.WorkflowNode, 0, len(rawNodes))
	for i, rn := range rawNodes {
		m, ok := rn.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("nodes[%d]: not an object", i)
		}
		id, _ := m["id"].(string)
		kind, _ := m["kind"].(string)
		label, _ := m["label"].(string)
		position, _ := m["position"].(map[string]interface{})
		nodeData, _ := m["data"].(map[string]interface{})
		if label == "" {
			if l, ok := nodeData["label"].(string); ok {
				label = l
			}
		}
		nodes = append(nodes, graph.WorkflowNode{
			ID:       id,
			Kind:     kind,
			Label:    label,
			Position: position,
			Data:     nodeData,
		})
	}

	edges := make([]graph.Edge, 0, len(rawEdges))
	for i, re := range rawEdges {
		m, ok := re.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("edges[%d]: not an object", i)
		}
		id, _ := m["id"].(string)
		from, _ := m["source_node_id"].(string)
		to, _ := m["target_node_id"].(string)
		fromPort, _ := m["source_port"].(string)
		toPort, _ := m["target_port"].(string)
		edges = append(edges, graph.Edge{
			ID:       id,
			From:     from,
			To:       to,
			FromPort: fromPort,
			ToPort:   toPort,
		})
	}

	return nodes, edges, nil
}
