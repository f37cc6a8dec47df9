package agent

import (
	"context"
	"path/filepath"
	"testing"
)

func TestDBQuery_CreateInsertSelect(t *testing.T) {
	dq := NewDBQuery(nil)
	cfg := map[string]interface{}{
		"db_type":  "sqlite",
		"database": filepath.Join(t.TempDir(), "test.db"),
	}

	create, err := dq.Execute(context.Background(), cfg, map[string]interface{}{
		"operation": "create_table",
		"query":     "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)",
	})
	if err != nil {
		t.Fatalf("Execute create_table: %v", err)
	}
	if create.Variables["operation_success"] != true {
		t.Fatalf("create_table did not succeed: %#v", create.Output)
	}

	insert, err := dq.Execute(context.Background(), cfg, map[string]interface{}{
		"operation":  "insert",
		"query":      "INSERT INTO users (id, name) VALUES (:id, :name)",
		"parameters": map[string]interface{}{"id": 1, "name": "Ada"},
	})
	if err != nil {
		t.Fatalf("Execute insert: %v", err)
	}
	if insert.Variables["rows_affected"] != 1 {
		t.Fatalf("expected 1 row affected, got %#v", insert.Variables["rows_affected"])
	}

	query, err := dq.Execute(context.Background(), cfg, map[string]interface{}{
		"operation": "query",
		"query":     "SELECT id, name FROM users WHERE id = :id",
		"parameters": map[string]interface{}{"id": 1},
	})
	if err != nil {
		t.Fatalf("Execute query: %v", err)
	}
	if query.Output["row_count"] != 1 {
		t.Fatalf("expected 1 row, got %#v", query.Output)
	}
}

func TestDBQuery_MissingQueryFails(t *testing.T) {
	dq := NewDBQuery(nil)
	cfg := map[string]interface{}{"db_type": "sqlite", "database": filepath.Join(t.TempDir(), "test.db")}
	result, err := dq.Execute(context.Background(), cfg, map[string]interface{}{"operation": "query"})
	if err != nil {
		t.Fatalf("expected non-error absorbed failure, got %v", err)
	}
	if result.Variables["operation_success"] != false {
		t.Fatalf("expected operation_success=false, got %#v", result.Variables)
	}
}

func TestDBQuery_PoolReusesConnection(t *testing.T) {
	pool := NewDBPoolCache()
	cfg := map[string]interface{}{"db_type": "sqlite", "database": filepath.Join(t.TempDir(), "shared.db")}
	dq := NewDBQuery(pool)

	if _, err := dq.Execute(context.Background(), cfg, map[string]interface{}{
		"operation": "create_table", "query": "CREATE TABLE t (id INTEGER)",
	}); err != nil {
		t.Fatalf("create_table: %v", err)
	}
	if len(pool.pools) != 1 {
		t.Fatalf("expected 1 pooled connection, got %d", len(pool.pools))
	}
	if _, err := dq.Execute(context.Background(), cfg, map[string]interface{}{
		"operation": "list_tables",
	}); err != nil {
		t.Fatalf("list_tables: %v", err)
	}
	if len(pool.pools) != 1 {
		t.Fatalf("expected pool reuse, got %d pools", len(pool.pools))
	}
}
