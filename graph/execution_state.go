package graph

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ExecutionState is the single concrete state type the engine operates
// on. Workflow graphs are described dynamically at runtime (JSON
// nodes/edges), so — unlike the teacher engine this package is adapted
// from, which parameterized Engine[S any] per compile-time state struct —
// the DAG scheduler here is instantiated exactly once, over this type.
//
// Variables is the execution's variable scope (glossary: "Variable
// scope"): initialized from the execution's input_data, then augmented
// by each completed node's `variables` output. Results holds every
// node's full output, keyed by node ID, for downstream input_mapping
// resolution and for AgentLog/ProgressRecord construction.
type ExecutionState struct {
	Variables map[string]interface{}
	Results   map[string]interface{}
}

// NewExecutionState builds the initial state for a run from the
// execution's input_data.
func NewExecutionState(input map[string]interface{}) ExecutionState {
	vars := make(map[string]interface{}, len(input))
	for k, v := range input {
		vars[k] = v
	}
	return ExecutionState{
		Variables: vars,
		Results:   make(map[string]interface{}),
	}
}

// MergeState is the Reducer for ExecutionState: it is the only place
// writes to Variables/Results occur. The engine calls it from each node's
// goroutine while holding the dispatch state's mutex, so merges are
// serialized; MergeState itself takes no lock.
func MergeState(prev, delta ExecutionState) ExecutionState {
	for k, v := range delta.Variables {
		prev.Variables[k] = v
	}
	for k, v := range delta.Results {
		prev.Results[k] = v
	}
	return prev
}

// snapshot returns a shallow copy of the state's top-level maps, safe to
// hand to a concurrently-dispatched node task as a read-only view while
// the dispatcher keeps mutating its own copy.
func (s ExecutionState) snapshot() ExecutionState {
	vars := make(map[string]interface{}, len(s.Variables))
	for k, v := range s.Variables {
		vars[k] = v
	}
	results := make(map[string]interface{}, len(s.Results))
	for k, v := range s.Results {
		results[k] = v
	}
	return ExecutionState{Variables: vars, Results: results}
}

// ResolveInputMapping implements the §4.1 input-plumbing rule: entries
// beginning with "$name" are replaced with Variables[name] (optionally a
// dotted gjson path for nested lookups, e.g. "$user.email"), falling back
// to a lookup against Results (e.g. "$dataA.output.rows", addressing a
// prior node's full output by node id) when the path isn't found among
// Variables; everything else is copied verbatim. Grounded on the original
// Python execution_engine.py's _prepare_node_input.
func ResolveInputMapping(mapping map[string]interface{}, state ExecutionState) map[string]interface{} {
	if mapping == nil {
		return nil
	}
	resolved := make(map[string]interface{}, len(mapping))
	for key, raw := range mapping {
		str, ok := raw.(string)
		if !ok || !strings.HasPrefix(str, "$") {
			resolved[key] = raw
			continue
		}
		resolved[key] = resolveVariablePath(strings.TrimPrefix(str, "$"), state)
	}
	return resolved
}

// resolveVariablePath looks up path first against Variables, then against
// Results, returning nil if neither has it.
func resolveVariablePath(path string, state ExecutionState) interface{} {
	if v, ok := state.Variables[path]; ok {
		return v
	}
	if blob, err := marshalMap(state.Variables); err == nil {
		if result := gjson.GetBytes(blob, path); result.Exists() {
			return result.Value()
		}
	}
	if blob, err := marshalMap(state.Results); err == nil {
		if result := gjson.GetBytes(blob, path); result.Exists() {
			return result.Value()
		}
	}
	return nil
}

func marshalMap(m map[string]interface{}) ([]byte, error) {
	blob := []byte("{}")
	var err error
	for k, v := range m {
		blob, err = sjson.SetBytes(blob, k, v)
		if err != nil {
			return nil, err
		}
	}
	return blob, nil
}
