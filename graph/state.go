package graph

// Reducer merges a partial state update (delta) into accumulated state
// (prev). The engine always merges with MergeState; it has no option
// that accepts another Reducer.
type Reducer func(prev, delta ExecutionState) ExecutionState
