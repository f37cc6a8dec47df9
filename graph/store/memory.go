package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store implementation.
//
// Designed for testing, development, and single-process deployments
// where persistence across restarts isn't required. Thread-safe.
//
// Limitations: data is lost when the process terminates; not suitable
// for distributed systems.
type MemStore struct {
	mu         sync.RWMutex
	workflows  map[string]Workflow
	executions map[string]Execution
	agentLogs  []AgentLog
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows:  make(map[string]Workflow),
		executions: make(map[string]Execution),
	}
}

// SeedWorkflow installs a workflow row directly, bypassing the
// execution engine's read path. Used by callers (API handlers, tests)
// that create workflows through a different surface than the engine.
func (m *MemStore) SeedWorkflow(w Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[w.ID] = w
}

func (m *MemStore) CreateExecution(_ context.Context, rec Execution) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	m.executions[rec.ID] = rec
	return rec.ID, nil
}

func (m *MemStore) UpdateExecution(_ context.Context, id string, patch ExecutionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.executions[id]
	if !ok {
		return ErrNotFound
	}
	applyExecutionPatch(&rec, patch)
	m.executions[id] = rec
	return nil
}

func (m *MemStore) GetExecution(_ context.Context, id, userID string) (Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.executions[id]
	if !ok || (userID != "" && rec.UserID != userID) {
		return Execution{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Execution, 0)
	for _, rec := range m.executions {
		if filter.WorkflowID != "" && rec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		matches = append(matches, rec)
	}

	sortExecutionsByStartedAtDesc(matches)
	return paginate(matches, filter.Offset, filter.Limit), nil
}

func (m *MemStore) GetWorkflow(_ context.Context, id, userID string) (Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[id]
	if !ok || (userID != "" && wf.UserID != userID) {
		return Workflow{}, ErrNotFound
	}
	return wf, nil
}

func (m *MemStore) AppendAgentLog(_ context.Context, log AgentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	m.agentLogs = append(m.agentLogs, log)
	return nil
}

// applyExecutionPatch merges the non-nil fields of patch into rec,
// appending (not replacing) AppendLogs. Shared by every Store
// implementation's UpdateExecution.
func applyExecutionPatch(rec *Execution, patch ExecutionPatch) {
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.OutputData != nil {
		rec.OutputData = patch.OutputData
	}
	if patch.ErrorMessage != nil {
		rec.ErrorMessage = *patch.ErrorMessage
	}
	if patch.CompletedAt != nil {
		rec.CompletedAt = patch.CompletedAt
		rec.ExecutionTimeMS = patch.CompletedAt.Sub(rec.StartedAt).Milliseconds()
	}
	if len(patch.AppendLogs) > 0 {
		rec.Logs = append(rec.Logs, patch.AppendLogs...)
	}
}

func sortExecutionsByStartedAtDesc(execs []Execution) {
	for i := 1; i < len(execs); i++ {
		for j := i; j > 0 && execs[j].StartedAt.After(execs[j-1].StartedAt); j-- {
			execs[j], execs[j-1] = execs[j-1], execs[j]
		}
	}
}

func paginate(execs []Execution, offset, limit int) []Execution {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(execs) {
		return []Execution{}
	}
	end := len(execs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return execs[offset:end]
}
