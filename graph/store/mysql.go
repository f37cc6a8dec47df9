package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQLStore is a MySQL/MariaDB-backed Store implementation.
//
// Designed for production deployments requiring persistence across
// restarts and audit trails. Uses connection pooling and a transaction
// around UpdateExecution's read-modify-write for the required
// per-execution isolation (spec §4.5).
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL connection pool at dsn and ensures the
// schema exists. DSN format: user:pass@tcp(host:port)/dbname?parseTime=true.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			version INT NOT NULL DEFAULT 1,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			tags JSON,
			workflow_data JSON NOT NULL,
			execution_config JSON NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			INDEX idx_workflows_user (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS executions (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL,
			trigger_type VARCHAR(20) NOT NULL,
			input_data JSON,
			output_data JSON,
			error_message TEXT,
			execution_time_ms BIGINT NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP NULL,
			logs JSON NOT NULL,
			INDEX idx_executions_workflow (workflow_id),
			INDEX idx_executions_user (user_id),
			INDEX idx_executions_started (started_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS agent_logs (
			id VARCHAR(64) PRIMARY KEY,
			execution_id VARCHAR(64) NOT NULL,
			agent_kind VARCHAR(64) NOT NULL,
			agent_display_name VARCHAR(255) NOT NULL,
			step_index INT NOT NULL,
			status VARCHAR(20) NOT NULL,
			input_data JSON,
			output_data JSON,
			error_message TEXT,
			execution_time_ms BIGINT NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP NULL,
			INDEX idx_agent_logs_execution (execution_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (m *MySQLStore) Close() error {
	return m.db.Close()
}

func (m *MySQLStore) CreateExecution(ctx context.Context, rec Execution) (string, error) {
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

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, execution_time_ms, started_at, completed_at, logs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkflowID, rec.UserID, rec.Status, rec.TriggerType, string(input), string(output), rec.ErrorMessage, rec.ExecutionTimeMS, rec.StartedAt, rec.CompletedAt, string(logs))
	if err != nil {
		return "", fmt.Errorf("insert execution: %w", err)
	}
	return rec.ID, nil
}

func (m *MySQLStore) UpdateExecution(ctx context.Context, id string, patch ExecutionPatch) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, execution_time_ms, started_at, completed_at, logs
		FROM executions WHERE id = ? FOR UPDATE`, id)
	rec, err := scanExecution(row)
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

func (m *MySQLStore) GetExecution(ctx context.Context, id, userID string) (Execution, error) {
	query := `SELECT id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, execution_time_ms, started_at, completed_at, logs FROM executions WHERE id = ?`
	args := []interface{}{id}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	return scanExecution(m.db.QueryRowContext(ctx, query, args...))
}

func (m *MySQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]Execution, error) {
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

	rows, err := m.db.QueryContext(ctx, query, args...)
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

func (m *MySQLStore) GetWorkflow(ctx context.Context, id, userID string) (Workflow, error) {
	query := `SELECT id, user_id, name, description, version, status, is_public, tags, workflow_data, execution_config, created_at, updated_at FROM workflows WHERE id = ?`
	args := []interface{}{id}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	row := m.db.QueryRowContext(ctx, query, args...)
	var wf Workflow
	var tags, wfData, execCfg sql.NullString
	if err := row.Scan(&wf.ID, &wf.UserID, &wf.Name, &wf.Description, &wf.Version, &wf.Status, &wf.IsPublic, &tags, &wfData, &execCfg, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Workflow{}, ErrNotFound
		}
		return Workflow{}, fmt.Errorf("get workflow: %w", err)
	}
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &wf.Tags)
	}
	if wfData.Valid {
		_ = json.Unmarshal([]byte(wfData.String), &wf.WorkflowData)
	}
	if execCfg.Valid {
		_ = json.Unmarshal([]byte(execCfg.String), &wf.ExecutionConfig)
	}
	return wf, nil
}

// SeedWorkflow inserts or updates a workflow row. Used by callers that
// create workflows through a surface other than the engine itself.
func (m *MySQLStore) SeedWorkflow(ctx context.Context, wf Workflow) error {
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
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO workflows (id, user_id, name, description, version, status, is_public, tags, workflow_data, execution_config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE user_id=VALUES(user_id), name=VALUES(name), description=VALUES(description),
			version=VALUES(version), status=VALUES(status), is_public=VALUES(is_public), tags=VALUES(tags),
			workflow_data=VALUES(workflow_data), execution_config=VALUES(execution_config), updated_at=VALUES(updated_at)`,
		wf.ID, wf.UserID, wf.Name, wf.Description, wf.Version, wf.Status, wf.IsPublic, string(tags), string(wfData), string(execCfg), wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	return nil
}

func (m *MySQLStore) AppendAgentLog(ctx context.Context, log AgentLog) error {
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
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO agent_logs (id, execution_id, agent_kind, agent_display_name, step_index, status, input_data, output_data, error_message, execution_time_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.ExecutionID, log.AgentKind, log.AgentDisplayName, log.StepIndex, log.Status, string(input), string(output), log.ErrorMessage, log.ExecutionTimeMS, log.StartedAt, log.CompletedAt)
	if err != nil {
		return fmt.Errorf("append agent log: %w", err)
	}
	return nil
}
