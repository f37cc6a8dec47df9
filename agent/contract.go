// Package agent implements the registry-driven agent dispatch layer:
// a closed set of built-in agent kinds, each invoked with a declarative
// config + input map and returning a structured Result or a typed
// Error, per the engine's NodeBuilder seam (graph.NodeBuilder).
package agent

import (
	"context"
	"time"
)

// Agent is the shared contract every built-in kind implements. There is
// no inheritance here, following the teacher's Node[S] note that Go
// prefers small interfaces and composition over a base-class hierarchy
// — applied to this second, string-keyed (agent_kind) dispatch axis
// rather than the graph package's Node axis.
type Agent interface {
	// Execute runs the agent with the given config and input, observing
	// ctx cancellation at any suspension point (network/file/db I/O).
	Execute(ctx context.Context, cfg map[string]interface{}, input map[string]interface{}) (Result, error)
}

// Result is the common agent contract's successful outcome: an
// arbitrary output payload, a set of variables merged into the
// execution's scope, and bookkeeping metadata.
type Result struct {
	Output    map[string]interface{}
	Variables map[string]interface{}
	Metadata  Metadata
}

// Metadata carries at minimum the timing fields the spec requires on
// every agent result.
type Metadata struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Extra       map[string]interface{}
}

// ErrorKind enumerates the AgentFailure sub-kinds named in spec §7.
type ErrorKind string

const (
	KindTimeout        ErrorKind = "Timeout"
	KindTransportError ErrorKind = "TransportError"
	KindHTTPError      ErrorKind = "HttpError"
	KindAuthError      ErrorKind = "AuthError"
	KindBadResponse    ErrorKind = "BadResponse"
	KindSyntaxError    ErrorKind = "SyntaxError"
	KindInvalidInput   ErrorKind = "InvalidInput"
	KindInternal       ErrorKind = "Internal"
)

// Error is the typed failure an agent raises. The engine wraps it
// against the failing node; it never escapes to the execution level
// directly (the engine decides execution-level consequences).
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newMetadata(started time.Time) Metadata {
	return Metadata{StartedAt: started, CompletedAt: time.Now()}
}
