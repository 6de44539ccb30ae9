package dbrouter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wisbric/amila/pkg/orchestrator"
)

// OracleAdapter is a database/sql-shaped adapter. No Oracle driver (godror,
// go-ora) appears anywhere in the retrieved corpus, so this package does
// not import one — wiring a driver we never saw real usage of would be
// fabricating a dependency. The interface is complete; DriverName is
// supplied by config so an operator plugs in whatever licensed driver they
// run, per spec.md §1's "underlying SQL engines... out of scope".
type OracleAdapter struct {
	db *sql.DB
}

// NewOracleAdapter wraps an already-opened database/sql.DB using whatever
// driver name the deployment configured (AMILA_ORACLE_DRIVER).
func NewOracleAdapter(db *sql.DB) *OracleAdapter {
	return &OracleAdapter{db: db}
}

// Name implements Adapter.
func (a *OracleAdapter) Name() orchestrator.DatabaseType { return orchestrator.DatabaseOracle }

// GetSchema introspects USER_TAB_COLUMNS for tables owned by the connected
// user.
func (a *OracleAdapter) GetSchema(ctx context.Context, _ string, _ string) (Result, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, nullable
		FROM user_tab_columns
		ORDER BY table_name, column_id
	`)
	if err != nil {
		detail := TranslateOracleError(err.Error())
		return Result{}, fmt.Errorf("dbrouter/oracle: introspecting schema: %s: %w", detail.Title, err)
	}
	defer rows.Close()

	tables := map[string][]map[string]any{}
	for rows.Next() {
		var tableName, columnName, dataType, nullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &nullable); err != nil {
			return Result{}, fmt.Errorf("dbrouter/oracle: scanning schema row: %w", err)
		}
		tables[tableName] = append(tables[tableName], map[string]any{
			"name":     columnName,
			"type":     dataType,
			"nullable": nullable == "Y",
		})
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("dbrouter/oracle: iterating schema rows: %w", err)
	}

	return Result{
		Status:       "success",
		DatabaseType: string(orchestrator.DatabaseOracle),
		SchemaData: map[string]any{
			"tables": tables,
			"views":  map[string]any{},
		},
	}, nil
}

// ExecuteSQL runs sql and flattens the result set, translating any ORA-
// error before returning.
func (a *OracleAdapter) ExecuteSQL(ctx context.Context, sqlText string, _ string, _ string) (Result, error) {
	start := time.Now()

	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		detail := TranslateOracleError(err.Error())
		return Result{Status: "error", Error: detail.Explanation, DatabaseType: string(orchestrator.DatabaseOracle)},
			fmt.Errorf("dbrouter/oracle: %s (%s): %w", detail.Title, detail.ErrorCode, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("dbrouter/oracle: reading columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		scanDest := make([]any, len(columns))
		scanPtrs := make([]any, len(columns))
		for i := range scanDest {
			scanPtrs[i] = &scanDest[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return Result{}, fmt.Errorf("dbrouter/oracle: scanning row: %w", err)
		}
		out = append(out, scanDest)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("dbrouter/oracle: iterating rows: %w", err)
	}

	return Result{
		Status:          "success",
		Columns:         columns,
		Rows:            out,
		RowCount:        len(out),
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		DatabaseType:    string(orchestrator.DatabaseOracle),
	}, nil
}

// IsRecoverable reports whether err (as returned by ExecuteSQL) is a
// transient condition the resilience layer should retry.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return classifyOracleError(err.Error())
}
