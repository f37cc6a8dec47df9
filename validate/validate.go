// Package validate implements the structural and semantic checks a
// workflow must pass before it is executed (spec §4.3). Grounded on
// original_source's WorkflowValidator (backend/app/services/
// workflow_validator.py), translated from its eight sequential
// `_validate_*` passes into one ordered pass over a graph.WorkflowNode/
// graph.Edge pair, reusing graph.FindCycle instead of re-implementing
// cycle detection.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowforge/orchestrator/graph"
)

// validNodeKinds mirrors spec §3 "Node": kind ∈ {agent, condition, trigger, action}.
var validNodeKinds = map[string]bool{
	"agent":     true,
	"condition": true,
	"trigger":   true,
	"action":    true,
}

// Result is the validation service's response (spec §4.3).
type Result struct {
	IsValid         bool                `json:"is_valid"`
	Errors          []string            `json:"errors"`
	Warnings        []string            `json:"warnings"`
	NodeErrors      map[string][]string `json:"node_errors"`
	EdgeErrors      map[string][]string `json:"edge_errors"`
	Recommendations []string            `json:"recommendations"`
}

func newResult() *Result {
	return &Result{
		IsValid:         true,
		Errors:          []string{},
		Warnings:        []string{},
		NodeErrors:      make(map[string][]string),
		EdgeErrors:      make(map[string][]string),
		Recommendations: []string{},
	}
}

func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *Result) addNodeError(nodeID, msg string) {
	r.addError(msg)
	r.NodeErrors[nodeID] = append(r.NodeErrors[nodeID], msg)
}

func (r *Result) addEdgeError(edgeID, msg string) {
	r.addError(msg)
	r.EdgeErrors[edgeID] = append(r.EdgeErrors[edgeID], msg)
}

func (r *Result) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Validate runs the eight ordered checks from spec §4.3 against a
// workflow's nodes and edges. knownAgentKinds is the set of agent_kind
// strings the registry can dispatch (check 4 warns, rather than
// errors, on an unknown kind, since the registry is "extendable" per
// spec §4.2).
func Validate(nodes []graph.WorkflowNode, edges []graph.Edge, knownAgentKinds map[string]bool) Result {
	r := newResult()

	// 1. Non-empty node set; warn if > 100 nodes.
	if len(nodes) == 0 {
		r.addError("workflow must contain at least one node")
		r.IsValid = false
		return *r
	}
	if len(nodes) > 100 {
		r.addWarning("workflow has many nodes - consider breaking into smaller workflows")
	}

	// 2. Every node has id, kind, position, data; ids unique.
	nodeIDs := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		validateNodeStructure(n, nodeIDs, r)
	}

	// 3. Every edge has source/target referring to existing node ids; edge ids unique.
	edgeIDs := make(map[string]bool, len(edges))
	for _, e := range edges {
		validateEdge(e, nodeIDs, edgeIDs, r)
	}

	// 4. Agent nodes carry a known agent_kind (warn if unknown) and a label (warn if missing).
	for _, n := range nodes {
		validateAgentNodeData(n, knownAgentKinds, r)
	}

	// 5. Acyclic.
	depGraph := buildTolerantGraph(nodes, edges)
	if cyc := graph.FindCycle(depGraph); cyc != "" {
		r.addError(fmt.Sprintf("workflow contains a cycle at node: %s", cyc))
	}

	// 6. Presence of >= 1 entry point.
	hasIncoming := make(map[string]bool, len(nodes))
	hasOutgoing := make(map[string]bool, len(nodes))
	for _, e := range edges {
		hasIncoming[e.To] = true
		hasOutgoing[e.From] = true
	}
	entryCount := 0
	for _, n := range nodes {
		if !hasIncoming[n.ID] {
			entryCount++
		}
	}
	if entryCount == 0 {
		r.addWarning("no entry points found - workflow may not be executable")
	}

	// 7. Per-agent-kind config sanity.
	for _, n := range nodes {
		validateConfigSanity(n, r)
	}

	// 8. Orphan detection (nodes with no incident edge in a multi-node workflow).
	if len(nodes) > 1 {
		var orphans []string
		for _, n := range nodes {
			if !hasIncoming[n.ID] && !hasOutgoing[n.ID] {
				orphans = append(orphans, n.ID)
			}
		}
		if len(orphans) > 0 {
			sort.Strings(orphans)
			r.addWarning(fmt.Sprintf("orphaned nodes found: %v", orphans))
		}
	}

	generateRecommendations(nodes, r)

	r.IsValid = len(r.Errors) == 0
	return *r
}

func validateNodeStructure(n graph.WorkflowNode, seen map[string]bool, r *Result) {
	if n.ID == "" {
		r.addError("node missing required field: id")
		return
	}
	if seen[n.ID] {
		r.addNodeError(n.ID, fmt.Sprintf("duplicate node id: %s", n.ID))
	} else {
		seen[n.ID] = true
	}

	if n.Kind == "" {
		r.addNodeError(n.ID, fmt.Sprintf("node %s missing required field: kind", n.ID))
	} else if !validNodeKinds[n.Kind] {
		r.addNodeError(n.ID, fmt.Sprintf("node %s has invalid kind: %s", n.ID, n.Kind))
	}
	if n.Position == nil {
		r.addNodeError(n.ID, fmt.Sprintf("node %s missing required field: position", n.ID))
	}
	if n.Data == nil {
		r.addNodeError(n.ID, fmt.Sprintf("node %s missing required field: data", n.ID))
	}
}

func validateEdge(e graph.Edge, nodeIDs map[string]bool, seen map[string]bool, r *Result) {
	if e.ID == "" {
		r.addError("edge missing required field: id")
		return
	}
	if seen[e.ID] {
		r.addEdgeError(e.ID, fmt.Sprintf("duplicate edge id: %s", e.ID))
	} else {
		seen[e.ID] = true
	}

	if e.From == "" || e.To == "" {
		r.addEdgeError(e.ID, fmt.Sprintf("edge %s missing source or target", e.ID))
		return
	}
	if !nodeIDs[e.From] {
		r.addEdgeError(e.ID, fmt.Sprintf("edge %s references non-existent source node: %s", e.ID, e.From))
	}
	if !nodeIDs[e.To] {
		r.addEdgeError(e.ID, fmt.Sprintf("edge %s references non-existent target node: %s", e.ID, e.To))
	}
}

func validateAgentNodeData(n graph.WorkflowNode, knownAgentKinds map[string]bool, r *Result) {
	if n.Kind != "agent" {
		return
	}
	agentKind, _ := n.Data["agent_kind"].(string)
	if agentKind == "" {
		r.addNodeError(n.ID, fmt.Sprintf("agent node %s missing agent_kind", n.ID))
	} else if knownAgentKinds != nil && !knownAgentKinds[agentKind] {
		r.addWarning(fmt.Sprintf("agent node %s has unknown agent_kind: %s", n.ID, agentKind))
	}
	if n.Label == "" {
		r.addWarning(fmt.Sprintf("node %s missing recommended field: label", n.ID))
	}
}

// supportedCodeAnalyzerLanguages mirrors the original validator's
// hardcoded language allow-list; code_analyzer itself falls back to
// pattern-only analysis for anything not in this set (spec §4.2), so
// an unsupported language is a warning, not an error.
var supportedCodeAnalyzerLanguages = map[string]bool{
	"python": true, "javascript": true, "java": true, "cpp": true, "csharp": true, "go": true,
}

// validateConfigSanity implements spec §4.3 check 7: per-agent-kind
// config sanity (temperature, max_tokens, HTTP timeout, retries,
// code_analyzer language). Config is read as numbers via float64 since
// workflow_data decodes from JSON.
func validateConfigSanity(n graph.WorkflowNode, r *Result) {
	if n.Kind != "agent" {
		return
	}
	agentKind, _ := n.Data["agent_kind"].(string)
	config, _ := n.Data["config"].(map[string]interface{})
	if config == nil {
		return
	}

	switch agentKind {
	case "llm_generator":
		if temp, ok := asFloat(config["temperature"]); ok && (temp < 0 || temp > 2) {
			r.addWarning(fmt.Sprintf("node %s: temperature should be between 0 and 2", n.ID))
		}
		if tokens, ok := asFloat(config["max_tokens"]); ok && (tokens < 1 || tokens > 4000) {
			r.addWarning(fmt.Sprintf("node %s: max_tokens should be between 1 and 4000", n.ID))
		}
	case "http_caller":
		if timeout, ok := asFloat(config["timeout_seconds"]); ok && (timeout < 1 || timeout > 300) {
			r.addWarning(fmt.Sprintf("node %s: timeout_seconds should be between 1 and 300", n.ID))
		}
		if retries, ok := asFloat(config["retries"]); ok && (retries < 0 || retries > 10) {
			r.addWarning(fmt.Sprintf("node %s: retries should be between 0 and 10", n.ID))
		}
	case "code_analyzer":
		if lang, ok := config["language"].(string); ok && lang != "" && !supportedCodeAnalyzerLanguages[lang] {
			r.addWarning(fmt.Sprintf("node %s: unsupported language %q falls back to pattern-only analysis", n.ID, lang))
		}
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// buildTolerantGraph builds a graph.DepGraph for cycle detection only,
// silently skipping edges that reference unknown nodes (those are
// already reported by validateEdge) rather than failing the whole pass.
func buildTolerantGraph(nodes []graph.WorkflowNode, edges []graph.Edge) *graph.DepGraph {
	g := &graph.DepGraph{
		Nodes:        make(map[string]graph.WorkflowNode, len(nodes)),
		Predecessors: make(map[string]map[string]bool, len(nodes)),
		Successors:   make(map[string]map[string]bool, len(nodes)),
	}
	for _, n := range nodes {
		if _, dup := g.Nodes[n.ID]; dup {
			continue
		}
		g.Nodes[n.ID] = n
		g.Predecessors[n.ID] = make(map[string]bool)
		g.Successors[n.ID] = make(map[string]bool)
	}
	for _, e := range edges {
		if _, ok := g.Nodes[e.From]; !ok {
			continue
		}
		if _, ok := g.Nodes[e.To]; !ok {
			continue
		}
		if e.From == e.To {
			continue
		}
		g.Predecessors[e.To][e.From] = true
		g.Successors[e.From][e.To] = true
	}
	return g
}

func generateRecommendations(nodes []graph.WorkflowNode, r *Result) {
	if len(nodes) > 20 {
		r.Recommendations = append(r.Recommendations, "consider breaking this workflow into smaller, more manageable pieces")
	}

	unnamed := false
	hasErrorHandling := false
	hasMonitoring := false
	for _, n := range nodes {
		if n.Label == "" {
			unnamed = true
		}
		if n.Kind == "condition" && strings.Contains(strings.ToLower(n.Label), "error") {
			hasErrorHandling = true
		}
		if n.Kind == "action" && strings.Contains(strings.ToLower(n.Label), "log") {
			hasMonitoring = true
		}
	}
	if unnamed {
		r.Recommendations = append(r.Recommendations, "add descriptive labels to all nodes for better clarity")
	}
	if !hasErrorHandling && len(nodes) > 5 {
		r.Recommendations = append(r.Recommendations, "consider adding error handling nodes for better reliability")
	}
	if !hasMonitoring {
		r.Recommendations = append(r.Recommendations, "consider adding logging/monitoring nodes for better observability")
	}
}

