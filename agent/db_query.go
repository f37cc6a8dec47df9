package agent

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DBPoolCache caches one *sql.DB per (db_type, dsn) pair so repeated
// db_query invocations against the same database reuse a connection
// pool instead of dialing fresh each time, per spec §4.2's requirement
// that agents not construct long-lived handles per call.
type DBPoolCache struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

func NewDBPoolCache() *DBPoolCache {
	return &DBPoolCache{pools: make(map[string]*sql.DB)}
}

func (c *DBPoolCache) get(driver, dsn string) (*sql.DB, error) {
	key := driver + "|" + dsn
	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.pools[key]; ok {
		return db, nil
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	c.pools[key] = db
	return db, nil
}

// DBQuery is the db_query built-in, grounded on original_source's
// database_query.py: dispatches on operation (query/insert/update/
// delete/create_table/drop_table/describe_table/list_tables) against
// one of three dialects. The Python original drives all three through
// one SQLAlchemy engine; Go has no equivalent cross-dialect layer in
// the retrieved pack, so each db_type maps to its own database/sql
// driver (go-sql-driver/mysql, modernc.org/sqlite, lib/pq), selected at
// call time from config.db_type.
type DBQuery struct {
	pool *DBPoolCache
}

func NewDBQuery(pool *DBPoolCache) *DBQuery {
	if pool == nil {
		pool = NewDBPoolCache()
	}
	return &DBQuery{pool: pool}
}

func (d *DBQuery) Execute(ctx context.Context, cfg map[string]interface{}, input map[string]interface{}) (Result, error) {
	started := time.Now()

	dbType, _ := cfg["db_type"].(string)
	if dbType == "" {
		dbType = "sqlite"
	}
	driver, dsn, err := dsnFor(dbType, cfg)
	if err != nil {
		return dbFailure(started, err), nil
	}

	db, err := d.pool.get(driver, dsn)
	if err != nil {
		return dbFailure(started, fmt.Errorf("connection failed: %w", err)), nil
	}

	operation, _ := input["operation"].(string)
	if operation == "" {
		operation = "query"
	}
	query, _ := input["query"].(string)
	parameters, _ := input["parameters"].(map[string]interface{})

	if operation != "list_tables" && query == "" {
		return dbFailure(started, fmt.Errorf("SQL query is required")), nil
	}

	var output map[string]interface{}
	switch operation {
	case "query":
		output, err = runSelect(ctx, db, query, parameters)
	case "insert", "update", "delete":
		output, err = runExec(ctx, db, query, parameters, operation)
	case "create_table", "drop_table":
		output, err = runDDL(ctx, db, query, parameters, operation)
	case "describe_table":
		output, err = describeTable(ctx, db, dbType, query)
	case "list_tables":
		output, err = listTables(ctx, db, dbType)
	default:
		return dbFailure(started, fmt.Errorf("unsupported operation: %s", operation)), nil
	}
	if err != nil {
		return dbFailure(started, err), nil
	}

	rowsAffected := 0
	if n, ok := output["rows_affected"].(int64); ok {
		rowsAffected = int(n)
	}

	return Result{
		Output: output,
		Variables: map[string]interface{}{
			"operation_success": true,
			"rows_affected":     rowsAffected,
			"operation_type":    operation,
		},
		Metadata: newMetadata(started),
	}, nil
}

func dbFailure(started time.Time, err error) Result {
	return Result{
		Output:    map[string]interface{}{"error": err.Error()},
		Variables: map[string]interface{}{"operation_success": false, "error_message": err.Error()},
		Metadata:  newMetadata(started),
	}
}

func dsnFor(dbType string, cfg map[string]interface{}) (driver, dsn string, err error) {
	if cs, ok := cfg["connection_string"].(string); ok && cs != "" {
		switch dbType {
		case "postgresql", "postgres":
			return "postgres", cs, nil
		case "mysql":
			return "mysql", cs, nil
		default:
			return "sqlite", cs, nil
		}
	}

	host, _ := cfg["host"].(string)
	if host == "" {
		host = "localhost"
	}
	database, _ := cfg["database"].(string)
	username, _ := cfg["username"].(string)
	password, _ := cfg["password"].(string)
	port := 0
	if n, ok := toFloat(cfg["port"]); ok {
		port = int(n)
	}

	switch dbType {
	case "postgresql", "postgres":
		if port == 0 {
			port = 5432
		}
		return "postgres", fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", username, password, host, port, database), nil
	case "mysql":
		if port == 0 {
			port = 3306
		}
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", username, password, host, port, database), nil
	case "sqlite":
		return "sqlite", database, nil
	default:
		return "", "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

func runSelect(ctx context.Context, db *sql.DB, query string, params map[string]interface{}) (map[string]interface{}, error) {
	args, rewritten := bindParams(query, params)
	rows, err := db.QueryContext(ctx, rewritten, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var data []map[string]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeDBValue(vals[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"data":      data,
		"columns":   columns,
		"row_count": len(data),
		"query":     query,
	}, nil
}

func runExec(ctx context.Context, db *sql.DB, query string, params map[string]interface{}, operation string) (map[string]interface{}, error) {
	args, rewritten := bindParams(query, params)
	res, err := db.ExecContext(ctx, rewritten, args...)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	return map[string]interface{}{
		"rows_affected": affected,
		"query":         query,
		"operation":     operation,
	}, nil
}

func runDDL(ctx context.Context, db *sql.DB, query string, params map[string]interface{}, operation string) (map[string]interface{}, error) {
	args, rewritten := bindParams(query, params)
	if _, err := db.ExecContext(ctx, rewritten, args...); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"query":     query,
		"operation": operation,
		"success":   true,
	}, nil
}

func describeTable(ctx context.Context, db *sql.DB, dbType, tableName string) (map[string]interface{}, error) {
	var query string
	switch dbType {
	case "postgresql", "postgres":
		query = `SELECT column_name, data_type, is_nullable, column_default
			FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`
	case "mysql":
		query = "DESCRIBE " + tableName
	case "sqlite":
		query = "PRAGMA table_info(" + tableName + ")"
	default:
		return nil, fmt.Errorf("table description not supported for %s", dbType)
	}

	var rows *sql.Rows
	var err error
	if dbType == "postgresql" || dbType == "postgres" {
		rows, err = db.QueryContext(ctx, query, tableName)
	} else {
		rows, err = db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var data []map[string]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeDBValue(vals[i])
		}
		data = append(data, row)
	}

	return map[string]interface{}{
		"table_name":   tableName,
		"columns":      data,
		"column_count": len(data),
	}, nil
}

func listTables(ctx context.Context, db *sql.DB, dbType string) (map[string]interface{}, error) {
	var query string
	switch dbType {
	case "postgresql", "postgres":
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'"
	case "mysql":
		query = "SHOW TABLES"
	case "sqlite":
		query = "SELECT name FROM sqlite_master WHERE type='table'"
	default:
		return nil, fmt.Errorf("table listing not supported for %s", dbType)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	return map[string]interface{}{
		"tables":      tables,
		"table_count": len(tables),
	}, nil
}

// bindParams rewrites named ":param" placeholders in query into
// driver-agnostic "?" placeholders with an ordered args slice, mirroring
// the original's SQLAlchemy-style named-parameter binding.
func bindParams(query string, params map[string]interface{}) ([]interface{}, string) {
	if len(params) == 0 {
		return nil, query
	}
	var args []interface{}
	var b strings.Builder
	i := 0
	for i < len(query) {
		if query[i] == ':' {
			j := i + 1
			for j < len(query) && (isAlnum(query[j]) || query[j] == '_') {
				j++
			}
			if j > i+1 {
				name := query[i+1 : j]
				if v, ok := params[name]; ok {
					b.WriteString("?")
					args = append(args, v)
					i = j
					continue
				}
			}
		}
		b.WriteByte(query[i])
		i++
	}
	return args, b.String()
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func normalizeDBValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
