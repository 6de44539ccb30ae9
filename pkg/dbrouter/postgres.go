package dbrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wisbric/amila/pkg/orchestrator"
)

// PostgresAdapter executes against a live Postgres connection via sqlx.
type PostgresAdapter struct {
	db *sqlx.DB
}

// NewPostgresAdapter wraps an already-opened sqlx.DB.
func NewPostgresAdapter(db *sqlx.DB) *PostgresAdapter {
	return &PostgresAdapter{db: db}
}

// Name implements Adapter.
func (a *PostgresAdapter) Name() orchestrator.DatabaseType { return orchestrator.DatabasePostgres }

// GetSchema introspects tables and columns via information_schema.
func (a *PostgresAdapter) GetSchema(ctx context.Context, _ string, _ string) (Result, error) {
	type column struct {
		TableName  string `db:"table_name"`
		ColumnName string `db:"column_name"`
		DataType   string `db:"data_type"`
		IsNullable string `db:"is_nullable"`
	}

	var cols []column
	err := a.db.SelectContext(ctx, &cols, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position
	`)
	if err != nil {
		return Result{}, fmt.Errorf("dbrouter/postgres: introspecting schema: %w", err)
	}

	tables := map[string][]map[string]any{}
	for _, c := range cols {
		tables[c.TableName] = append(tables[c.TableName], map[string]any{
			"name":     c.ColumnName,
			"type":     c.DataType,
			"nullable": c.IsNullable == "YES",
		})
	}

	return Result{
		Status:       "success",
		DatabaseType: string(orchestrator.DatabasePostgres),
		SchemaData: map[string]any{
			"tables": tables,
			"views":  map[string]any{},
		},
	}, nil
}

// ExecuteSQL runs sql and flattens the result set into {columns, rows}.
func (a *PostgresAdapter) ExecuteSQL(ctx context.Context, sql string, _ string, _ string) (Result, error) {
	start := time.Now()

	rows, err := a.db.QueryxContext(ctx, sql)
	if err != nil {
		return Result{}, fmt.Errorf("dbrouter/postgres: executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("dbrouter/postgres: reading columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		record, err := rows.SliceScan()
		if err != nil {
			return Result{}, fmt.Errorf("dbrouter/postgres: scanning row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("dbrouter/postgres: iterating rows: %w", err)
	}

	return Result{
		Status:          "success",
		Columns:         columns,
		Rows:            out,
		RowCount:        len(out),
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		DatabaseType:    string(orchestrator.DatabasePostgres),
	}, nil
}
