package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store implementation.
//
// Designed for development, testing, and local single-process
// deployments requiring persistence across restarts. Uses WAL mode for
// concurrent reads and proper transactions for the status update.
//
// Schema:
//   - workflows: workflow definitions
//   - executions: one row per run, patched in place as it progresses
//   - agent_logs: append-only per-node records
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'draft',
			is_public INTEGER NOT NULL DEFAULT 0,
			tags TEXT,
			workflow_data TEXT NOT NULL,
			execution_config TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			input_data TEXT,
			output_data TEXT,
			error_message TEXT,
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			logs TEXT NOT NULL DEFAULT '[]'
		)`,
		"CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions(workflow_id)",
		"CREATE INDEX IF NOT EXISTS idx_executions_user ON executions(user_id)",
		`CREATE TABLE IF NOT EXISTS agent_logs (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			agent_kind TEXT NOT NULL,
			agent_display_name TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			status TEXT NOT NULL,
			input_data TEXT,
			output_data TEXT,
			error_message TEXT,
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS idx_agent_logs_execution ON agent_logs(execution_id)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExecution(ctx context.Context, rec Execution) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	input, err := json.Marshal(rec.InputData)
	if err != nil {
		return "", fmt.Errorf("marshal input_data: %w", err)
	}
	output, err := json.Marshal(rec.OutputData)
	if err != nil {
		return "", fmt.Errorf("marshal output_data: %w", err)
	}
	logs, err := json.Marshal(rec.Logs)
	if err != nil {
		return "", fmt.Errorf("marshal logs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, execution_time_ms, started_at, completed_at, logs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkflowID, rec.UserID, rec.Status, rec.TriggerType, string(input), string(output), rec.ErrorMessage, rec.ExecutionTimeMS, rec.StartedAt, rec.CompletedAt, string(logs))
	if err != nil {
		return "", fmt.Errorf("insert execution: %w", err)
	}
	return rec.ID, nil
}

func (s *SQLiteStore) UpdateExecution(ctx context.Context, id string, patch ExecutionPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanExecution(tx.QueryRowContext(ctx, `
		SELECT id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, execution_time_ms, started_at, completed_at, logs
		FROM executions WHERE id = ?`, id))
	if err != nil {
		return err
	}

	applyExecutionPatch(&rec, patch)

	output, err := json.Marshal(rec.OutputData)
	if err != nil {
		return fmt.Errorf("marshal output_data: %w", err)
	}
	logs, err := json.Marshal(rec.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE executions SET status=?, output_data=?, error_message=?, execution_time_ms=?, completed_at=?, logs=?
		WHERE id = ?`,
		rec.Status, string(output), rec.ErrorMessage, rec.ExecutionTimeMS, rec.CompletedAt, string(logs), id); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetExecution(ctx context.Context, id, userID string) (Execution, error) {
	query := `SELECT id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, execution_time_ms, started_at, completed_at, logs FROM executions WHERE id = ?`
	args := []interface{}{id}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	return scanExecution(s.db.QueryRowContext(ctx, query, args...))
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]Execution, error) {
	query := "SELECT id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, execution_time_ms, started_at, completed_at, logs FROM executions WHERE 1=1"
	var args []interface{}
	if filter.WorkflowID != "" {
		query += " AND workflow_id = ?"
		args = append(args, filter.WorkflowID)
	}
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		rec, err := scanExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, id, userID string) (Workflow, error) {
	query := `SELECT id, user_id, name, description, version, status, is_public, tags, workflow_data, execution_config, created_at, updated_at FROM workflows WHERE id = ?`
	args := []interface{}{id}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	var wf Workflow
	var tags, wfData, execCfg string
	var isPublic int
	if err := row.Scan(&wf.ID, &wf.UserID, &wf.Name, &wf.Description, &wf.Version, &wf.Status, &isPublic, &tags, &wfData, &execCfg, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Workflow{}, ErrNotFound
		}
		return Workflow{}, fmt.Errorf("get workflow: %w", err)
	}
	wf.IsPublic = isPublic != 0
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &wf.Tags)
	}
	_ = json.Unmarshal([]byte(wfData), &wf.WorkflowData)
	_ = json.Unmarshal([]byte(execCfg), &wf.ExecutionConfig)
	return wf, nil
}

// SeedWorkflow inserts or replaces a workflow row. Used by callers that
// create workflows through a surface other than the engine itself
// (e.g. the HTTP API, or tests).
func (s *SQLiteStore) SeedWorkflow(ctx context.Context, wf Workflow) error {
	tags, err := json.Marshal(wf.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	wfData, err := json.Marshal(wf.WorkflowData)
	if err != nil {
		return fmt.Errorf("marshal workflow_data: %w", err)
	}
	execCfg, err := json.Marshal(wf.ExecutionConfig)
	if err != nil {
		return fmt.Errorf("marshal execution_config: %w", err)
	}
	isPublic := 0
	if wf.IsPublic {
		isPublic = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, user_id, name, description, version, status, is_public, tags, workflow_data, execution_config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, name=excluded.name, description=excluded.description,
			version=excluded.version, status=excluded.status, is_public=excluded.is_public, tags=excluded.tags,
			workflow_data=excluded.workflow_data, execution_config=excluded.execution_config, updated_at=excluded.updated_at`,
		wf.ID, wf.UserID, wf.Name, wf.Description, wf.Version, wf.Status, isPublic, string(tags), string(wfData), string(execCfg), wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendAgentLog(ctx context.Context, log AgentLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	input, err := json.Marshal(log.InputData)
	if err != nil {
		return fmt.Errorf("marshal input_data: %w", err)
	}
	output, err := json.Marshal(log.OutputData)
	if err != nil {
		return fmt.Errorf("marshal output_data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_logs (id, execution_id, agent_kind, agent_display_name, step_index, status, input_data, output_data, error_message, execution_time_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.ExecutionID, log.AgentKind, log.AgentDisplayName, log.StepIndex, log.Status, string(input), string(output), log.ErrorMessage, log.ExecutionTimeMS, log.StartedAt, log.CompletedAt)
	if err != nil {
		return fmt.Errorf("append agent log: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanExecution serve single-row (QueryRow) and multi-row (Query) callers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (Execution, error) {
	rec, err := scanExecutionRow(row)
	if err == sql.ErrNoRows {
		return Execution{}, ErrNotFound
	}
	return rec, err
}

func scanExecutionRow(row rowScanner) (Execution, error) {
	var rec Execution
	var input, output, logs string
	if err := row.Scan(&rec.ID, &rec.WorkflowID, &rec.UserID, &rec.Status, &rec.TriggerType, &input, &output, &rec.ErrorMessage, &rec.ExecutionTimeMS, &rec.StartedAt, &rec.CompletedAt, &logs); err != nil {
		if err == sql.ErrNoRows {
			return Execution{}, err
		}
		return Execution{}, fmt.Errorf("scan execution: %w", err)
	}
	if input != "" {
		_ = json.Unmarshal([]byte(input), &rec.InputData)
	}
	if output != "" {
		_ = json.Unmarshal([]byte(output), &rec.OutputData)
	}
	if logs != "" {
		_ = json.Unmarshal([]byte(logs), &rec.Logs)
	}
	return rec, nil
}
