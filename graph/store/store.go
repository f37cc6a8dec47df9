// Package store provides the metadata-store interface and its
// implementations: the narrow read/write surface the execution engine
// uses to persist workflow, execution, and agent-log records (spec
// §4.5 "Metadata Store Interface"). It also adapts that interface into
// a graph.Recorder so the engine can write through it without
// depending on this package directly.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested workflow, execution, or log
// row does not exist, or when a lookup is scoped to the wrong owner.
var ErrNotFound = errors.New("not found")

// Workflow is the persisted form of spec §3's Workflow: a saved DAG
// definition plus its default execution configuration. WorkflowData
// holds the raw nodes/edges/viewport the validation service and engine
// parse; ExecutionConfig holds per-run defaults (timeout_seconds,
// max_retries, retry_delay_seconds, parallel_allowed, initial_variables).
type Workflow struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Version         int                    `json:"version"`
	Status          string                 `json:"status"` // draft, published, archived
	IsPublic        bool                   `json:"is_public"`
	Tags            []string               `json:"tags"`
	WorkflowData    map[string]interface{} `json:"workflow_data"`
	ExecutionConfig map[string]interface{} `json:"execution_config"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ProgressRecord is one entry in an Execution's append-only log (spec
// §3 "ProgressRecord").
type ProgressRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	NodeID    string                 `json:"node_id,omitempty"`
	Level     string                 `json:"level"`
	Type      string                 `json:"type"` // node_started, node_completed, node_failed, execution_started, execution_completed, execution_cancelled
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Execution is the persisted form of spec §3's Execution. Status moves
// monotonically through queued < running < {completed, failed,
// cancelled}. UpdateExecution does not check transitions: no store
// implementation rejects a patch to a record whose status is already terminal.
type Execution struct {
	ID              string                 `json:"id"`
	WorkflowID      string                 `json:"workflow_id"`
	UserID          string                 `json:"user_id"`
	Status          string                 `json:"status"` // queued, running, completed, failed, cancelled
	TriggerType     string                 `json:"trigger_type"` // manual, schedule, webhook, api
	InputData       map[string]interface{} `json:"input_data,omitempty"`
	OutputData      map[string]interface{} `json:"output_data,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	ExecutionTimeMS int64                  `json:"execution_time_ms"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	Logs            []ProgressRecord       `json:"logs,omitempty"`
}

// AgentLog is the persisted per-node record (spec §3 "AgentLog").
// StepIndex reflects completion order, not DAG order — node completion
// across independent branches is non-deterministic (spec §5).
type AgentLog struct {
	ID               string                 `json:"id"`
	ExecutionID      string                 `json:"execution_id"`
	AgentKind        string                 `json:"agent_kind"`
	AgentDisplayName string                 `json:"agent_display_name"`
	StepIndex        int                    `json:"step_index"`
	Status           string                 `json:"status"` // started, completed, failed, skipped
	InputData        map[string]interface{} `json:"input_data,omitempty"`
	OutputData       map[string]interface{} `json:"output_data,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	ExecutionTimeMS  int64                  `json:"execution_time_ms"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
}

// ExecutionPatch carries the fields update_execution may set (spec
// §4.5: "patch may set status, output_data, error_message,
// completed_at, logs"). A nil field leaves the corresponding column
// untouched; AppendLogs is appended to the existing log list rather
// than replacing it.
type ExecutionPatch struct {
	Status       *string
	OutputData   map[string]interface{}
	ErrorMessage *string
	CompletedAt  *time.Time
	AppendLogs   []ProgressRecord
}

// ExecutionFilter scopes a paged list_executions call.
type ExecutionFilter struct {
	WorkflowID string
	UserID     string
	Status     string
	Limit      int
	Offset     int
}

// Store is the engine's metadata-store dependency: six methods, spec
// §4.5. Implementations may back onto any relational or key-value
// store; transactional guarantees are only required for the single-row
// update_execution write — row-level isolation per execution suffices.
type Store interface {
	// CreateExecution inserts a new execution row and returns its id.
	CreateExecution(ctx context.Context, rec Execution) (string, error)

	// UpdateExecution applies patch to the execution identified by id.
	// Implementations must make this update atomic per row.
	UpdateExecution(ctx context.Context, id string, patch ExecutionPatch) error

	// GetExecution fetches an execution scoped to its owning user.
	// Returns ErrNotFound if the id doesn't exist or userID doesn't own it.
	GetExecution(ctx context.Context, id, userID string) (Execution, error)

	// ListExecutions returns a paged, filtered set of executions.
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]Execution, error)

	// GetWorkflow fetches a workflow scoped to its owning user.
	// Returns ErrNotFound if the id doesn't exist or userID doesn't own it.
	GetWorkflow(ctx context.Context, id, userID string) (Workflow, error)

	// AppendAgentLog records one AgentLog row.
	AppendAgentLog(ctx context.Context, log AgentLog) error
}
