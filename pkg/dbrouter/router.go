// Package dbrouter dispatches schema and execution requests to the
// per-backend adapters. The underlying SQL engines themselves are an
// explicit non-goal (spec.md §1) — this package owns only the uniform
// interface and per-backend error normalization.
package dbrouter

import (
	"context"
	"fmt"
	"sync"

	"github.com/wisbric/amila/pkg/orchestrator"
)

// Result is the canonical execution/schema shape from spec.md §4.8.
type Result struct {
	Status          string         `json:"status"`
	Columns         []string       `json:"columns"`
	Rows            [][]any        `json:"rows"`
	RowCount        int            `json:"row_count"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	QueryID         string         `json:"query_id,omitempty"`
	TraceID         string         `json:"trace_id,omitempty"`
	DatabaseType    string         `json:"database_type"`
	SchemaData      map[string]any `json:"schema_data,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Adapter is the uniform backend interface every database type implements.
type Adapter interface {
	Name() orchestrator.DatabaseType
	GetSchema(ctx context.Context, query string, connection string) (Result, error)
	ExecuteSQL(ctx context.Context, sql string, connection string, user string) (Result, error)
}

// Router is a provider-style registry dispatching by database type,
// generalized from the teacher's pkg/messaging.Registry (register/get by
// name, here keyed by DatabaseType instead of provider name).
type Router struct {
	mu       sync.RWMutex
	adapters map[orchestrator.DatabaseType]Adapter
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{adapters: make(map[orchestrator.DatabaseType]Adapter)}
}

// Register adds an adapter to the router, keyed by its own declared name.
func (r *Router) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a database type.
func (r *Router) Get(dbType orchestrator.DatabaseType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[dbType]
	if !ok {
		return nil, fmt.Errorf("dbrouter: no adapter registered for database type %q", dbType)
	}
	return a, nil
}

// All returns every registered adapter, for health checks and tests.
func (r *Router) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}
