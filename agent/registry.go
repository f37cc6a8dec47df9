package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/graph"
)

// Kind names for the seven built-in agents, matching spec §4.2's
// agent_kind values exactly as they appear in a node's data.agent_kind.
const (
	KindHTTPCaller    = "http_caller"
	KindDataProcessor = "data_processor"
	KindCodeAnalyzer  = "code_analyzer"
	KindFileHandler   = "file_handler"
	KindEmailSender   = "email_sender"
	KindDBQuery       = "db_query"
	KindLLMGenerator  = "llm_generator"
)

// Descriptor is the registry's metadata for one agent kind: the
// display name and the three JSON schemas (config, input, output) the
// validation service and API clients consume, per spec §4.2's closing
// paragraph.
type Descriptor struct {
	Kind         string
	DisplayName  string
	ConfigSchema map[string]interface{}
	InputSchema  map[string]interface{}
	OutputSchema map[string]interface{}
	Impl         Agent
}

// Registry is a read-only-after-init kind→implementation table.
type Registry struct {
	agents map[string]Descriptor
}

// NewRegistry builds the fixed table of seven built-in agents.
func NewRegistry(deps Dependencies) *Registry {
	r := &Registry{agents: make(map[string]Descriptor, 7)}
	r.register(Descriptor{Kind: KindHTTPCaller, DisplayName: "HTTP Caller", Impl: NewHTTPCaller()})
	r.register(Descriptor{Kind: KindDataProcessor, DisplayName: "Data Processor", Impl: NewDataProcessor()})
	r.register(Descriptor{Kind: KindCodeAnalyzer, DisplayName: "Code Analyzer", Impl: NewCodeAnalyzer()})
	r.register(Descriptor{Kind: KindFileHandler, DisplayName: "File Handler", Impl: NewFileHandler()})
	r.register(Descriptor{Kind: KindEmailSender, DisplayName: "Email Sender", Impl: NewEmailSender()})
	r.register(Descriptor{Kind: KindDBQuery, DisplayName: "Database Query", Impl: NewDBQuery(deps.DBPool)})
	r.register(Descriptor{Kind: KindLLMGenerator, DisplayName: "LLM Text Generator", Impl: NewLLMGenerator(deps.ChatModels, deps.CostTracker)})
	return r
}

func (r *Registry) register(d Descriptor) { r.agents[d.Kind] = d }

// Lookup returns the Agent implementation for a kind, or ok=false if
// the kind is unregistered (the caller raises UnknownAgent).
func (r *Registry) Lookup(kind string) (Agent, bool) {
	d, ok := r.agents[kind]
	if !ok {
		return nil, false
	}
	return d.Impl, true
}

// Descriptors returns every registered kind's metadata, for the
// validation service and for API clients browsing available agents.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.agents))
	for _, d := range r.agents {
		out = append(out, d)
	}
	return out
}

// Dependencies bundles the shared, long-lived handles built-in agents
// need that must not be constructed per node invocation: a DB
// connection-pool cache, the LLM ChatModel set, and a shared cost
// tracker.
type Dependencies struct {
	DBPool      *DBPoolCache
	ChatModels  ChatModelSet
	CostTracker *graph.CostTracker
}

// Builder adapts a Registry into a graph.NodeBuilder, the seam between
// the domain-agnostic graph package and this package's kind dispatch.
// It never imports graph's dispatch internals beyond WorkflowNode and
// Node — this keeps graph itself domain-agnostic, per the teacher's
// existing NodeBuilder seam in engine.go.
type Builder struct {
	Registry *Registry
}

// Build implements graph.NodeBuilder.
func (b *Builder) Build(n graph.WorkflowNode) (graph.Node, error) {
	switch n.Kind {
	case "agent":
		kind, _ := n.Data["agent_kind"].(string)
		impl, ok := b.Registry.Lookup(kind)
		if !ok {
			return nil, &graph.EngineError{Message: "unknown agent kind: " + kind, Code: graph.CodeUnknownAgent, NodeID: n.ID}
		}
		cfg, _ := n.Data["config"].(map[string]interface{})
		inputMapping, _ := n.Data["input_mapping"].(map[string]interface{})
		return &agentNode{nodeID: n.ID, impl: impl, cfg: cfg, inputMapping: inputMapping}, nil
	case "condition":
		return newConditionNode(n)
	case "trigger", "action":
		return newPassthroughNode(n), nil
	default:
		return nil, &graph.EngineError{Message: "unknown node kind: " + n.Kind, Code: graph.CodeInvalidWorkflow, NodeID: n.ID}
	}
}

// agentNode adapts one Agent invocation to graph.Node: it resolves the
// node's input_mapping against the running ExecutionState, invokes the
// Agent, and folds the result back into a graph.NodeResult.
type agentNode struct {
	nodeID       string
	impl         Agent
	cfg          map[string]interface{}
	inputMapping map[string]interface{}
}

func (n *agentNode) Run(ctx context.Context, state graph.ExecutionState) graph.NodeResult {
	started := time.Now()
	input := buildAgentInput(n.inputMapping, state)

	result, err := n.impl.Execute(ctx, n.cfg, input)
	if err != nil {
		return graph.NodeResult{Err: wrapAgentError(n.nodeID, err)}
	}

	delta := graph.ExecutionState{
		Variables: result.Variables,
		Results:   map[string]interface{}{n.nodeID: map[string]interface{}{"output": result.Output, "metadata": metadataMap(result.Metadata, started)}},
	}
	return graph.NodeResult{Delta: delta}
}

// buildAgentInput assembles the object an agent's Execute receives, per
// spec §4.1's input-plumbing rule: the node's own input_mapping resolved
// against the running state, plus the current variable scope and every
// prior node's full result keyed by node id — so an agent whose useful
// output lives only in Results (e.g. data_processor's `output.data`) can
// still be consumed downstream via "variables"/"previous_results" even
// without an explicit input_mapping entry for it.
func buildAgentInput(mapping map[string]interface{}, state graph.ExecutionState) map[string]interface{} {
	input := graph.ResolveInputMapping(mapping, state)
	if input == nil {
		input = make(map[string]interface{}, 2)
	}
	input["variables"] = state.Variables
	input["previous_results"] = state.Results
	return input
}

func metadataMap(m Metadata, started time.Time) map[string]interface{} {
	completed := m.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	return map[string]interface{}{
		"started_at":   started,
		"completed_at": completed,
	}
}

func wrapAgentError(nodeID string, err error) error {
	if ae, ok := err.(*Error); ok {
		return &graph.EngineError{Message: ae.Message, Code: graph.CodeAgentFailure, NodeID: nodeID, Cause: ae}
	}
	return &graph.EngineError{Message: err.Error(), Code: graph.CodeAgentFailure, NodeID: nodeID, Cause: err}
}

// conditionNode evaluates a config-declared predicate against the
// running state's variables and routes to exactly one successor by
// name (the "true_path"/"false_path" data fields), per spec §3's
// condition node kind.
type conditionNode struct {
	nodeID    string
	predicate func(vars map[string]interface{}) bool
	truePath  string
	falsePath string
}

func newConditionNode(n graph.WorkflowNode) (graph.Node, error) {
	truePath, _ := n.Data["true_path"].(string)
	falsePath, _ := n.Data["false_path"].(string)
	field, _ := n.Data["field"].(string)
	op, _ := n.Data["operator"].(string)
	value := n.Data["value"]
	if truePath == "" && falsePath == "" {
		return nil, &graph.EngineError{Message: "condition node requires at least one of true_path/false_path", Code: graph.CodeInvalidWorkflow, NodeID: n.ID}
	}
	return &conditionNode{
		nodeID:    n.ID,
		predicate: func(vars map[string]interface{}) bool { return evalCondition(vars, field, op, value) },
		truePath:  truePath,
		falsePath: falsePath,
	}, nil
}

func (n *conditionNode) Run(ctx context.Context, state graph.ExecutionState) graph.NodeResult {
	target := n.falsePath
	if n.predicate(state.Variables) {
		target = n.truePath
	}
	if target == "" {
		return graph.NodeResult{Route: graph.Stop()}
	}
	return graph.NodeResult{Route: graph.Goto(target)}
}

func evalCondition(vars map[string]interface{}, field, op string, want interface{}) bool {
	got := vars[field]
	switch op {
	case "equals", "":
		return fmt.Sprint(got) == fmt.Sprint(want)
	case "not_equals":
		return fmt.Sprint(got) != fmt.Sprint(want)
	case "greater_than":
		gf, gok := toFloat(got)
		wf, wok := toFloat(want)
		return gok && wok && gf > wf
	case "less_than":
		gf, gok := toFloat(got)
		wf, wok := toFloat(want)
		return gok && wok && gf < wf
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// passthroughNode implements trigger/action node kinds: they carry no
// agent logic of their own and simply join the DAG, passing the
// running state through unchanged.
type passthroughNode struct{}

func newPassthroughNode(graph.WorkflowNode) graph.Node { return passthroughNode{} }

func (passthroughNode) Run(ctx context.Context, state graph.ExecutionState) graph.NodeResult {
	return graph.NodeResult{}
}
