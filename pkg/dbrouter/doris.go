package dbrouter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wisbric/amila/pkg/orchestrator"
)

// DorisAdapter is MySQL-wire-compatible: Doris speaks the MySQL protocol,
// and no Doris-specific driver exists anywhere in the retrieved corpus, so
// this adapter is documented to run over the go-sql-driver/mysql driver
// name by convention rather than importing a driver this codebase never
// demonstrated real usage of.
type DorisAdapter struct {
	db *sql.DB
}

// NewDorisAdapter wraps an already-opened database/sql.DB (driver name
// configured via AMILA_DORIS_DRIVER, default "mysql").
func NewDorisAdapter(db *sql.DB) *DorisAdapter {
	return &DorisAdapter{db: db}
}

// Name implements Adapter.
func (a *DorisAdapter) Name() orchestrator.DatabaseType { return orchestrator.DatabaseDoris }

// GetSchema introspects information_schema.columns, same query shape as
// Postgres since Doris' information_schema is MySQL-compatible.
func (a *DorisAdapter) GetSchema(ctx context.Context, _ string, _ string) (Result, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position
	`)
	if err != nil {
		return Result{}, fmt.Errorf("dbrouter/doris: introspecting schema: %w", err)
	}
	defer rows.Close()

	tables := map[string][]map[string]any{}
	for rows.Next() {
		var tableName, columnName, dataType, nullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &nullable); err != nil {
			return Result{}, fmt.Errorf("dbrouter/doris: scanning schema row: %w", err)
		}
		tables[tableName] = append(tables[tableName], map[string]any{
			"name":     columnName,
			"type":     dataType,
			"nullable": nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("dbrouter/doris: iterating schema rows: %w", err)
	}

	return Result{
		Status:       "success",
		DatabaseType: string(orchestrator.DatabaseDoris),
		SchemaData: map[string]any{
			"tables": tables,
			"views":  map[string]any{},
		},
	}, nil
}

// ExecuteSQL runs sql and flattens the result set into {columns, rows}.
func (a *DorisAdapter) ExecuteSQL(ctx context.Context, sqlText string, _ string, _ string) (Result, error) {
	start := time.Now()

	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("dbrouter/doris: executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("dbrouter/doris: reading columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		scanDest := make([]any, len(columns))
		scanPtrs := make([]any, len(columns))
		for i := range scanDest {
			scanPtrs[i] = &scanDest[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return Result{}, fmt.Errorf("dbrouter/doris: scanning row: %w", err)
		}
		out = append(out, scanDest)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("dbrouter/doris: iterating rows: %w", err)
	}

	return Result{
		Status:          "success",
		Columns:         columns,
		Rows:            out,
		RowCount:        len(out),
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		DatabaseType:    string(orchestrator.DatabaseDoris),
	}, nil
}
