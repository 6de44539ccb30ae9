// Package checkpoint persists QueryState snapshots keyed by thread_id so
// the orchestrator can suspend and resume across process restarts.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/amila/pkg/orchestrator"
)

// Store is a Postgres-backed checkpoint store: one logical table holding
// the latest snapshot per thread, plus an append-only history table for
// audit/debug replay. This is a materially rewritten generalization of the
// teacher's tenant-scoped pgx query pattern — single-tenant, keyed by
// thread_id instead of a tenant schema, since this domain carries no
// multi-tenancy concept.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Save upserts the latest snapshot for state.ThreadID and appends a history
// row. Both writes happen in one transaction so a crash never leaves the
// latest-snapshot table ahead of the history table.
func (s *Store) Save(ctx context.Context, state *orchestrator.QueryState) error {
	state.UpdatedAt = time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint: marshaling state: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("checkpoint: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orchestrator_checkpoints (thread_id, query_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id) DO UPDATE
		SET query_id = EXCLUDED.query_id, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, state.ThreadID, state.QueryID, payload, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("checkpoint: upserting snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orchestrator_checkpoint_history (thread_id, query_id, state, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, state.ThreadID, state.QueryID, payload, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("checkpoint: appending history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("checkpoint: committing transaction: %w", err)
	}
	return nil
}

// Load returns the latest snapshot for threadID, or (nil, nil) if none
// exists — callers distinguish "no checkpoint yet" from an error.
func (s *Store) Load(ctx context.Context, threadID string) (*orchestrator.QueryState, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state FROM orchestrator_checkpoints WHERE thread_id = $1
	`, threadID).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: loading snapshot: %w", err)
	}

	var state orchestrator.QueryState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshaling state: %w", err)
	}
	return &state, nil
}

// LoadByQueryID returns the latest snapshot whose query_id matches, or
// (nil, nil) if none exists. HTTP handlers address queries by query_id
// (spec.md §6.1's path parameter); threadID remains the engine's internal
// resume key.
func (s *Store) LoadByQueryID(ctx context.Context, queryID string) (*orchestrator.QueryState, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state FROM orchestrator_checkpoints WHERE query_id = $1
	`, queryID).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: loading snapshot by query_id: %w", err)
	}

	var state orchestrator.QueryState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshaling state: %w", err)
	}
	return &state, nil
}

// HistoryEntry is one recorded snapshot from the append-only history table.
type HistoryEntry struct {
	State      orchestrator.QueryState
	RecordedAt time.Time
}

// History returns the most recent limit snapshots for threadID, newest
// first.
func (s *Store) History(ctx context.Context, threadID string, limit int) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT state, recorded_at FROM orchestrator_checkpoint_history
		WHERE thread_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: querying history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var payload []byte
		var recordedAt time.Time
		if err := rows.Scan(&payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("checkpoint: scanning history row: %w", err)
		}
		var state orchestrator.QueryState
		if err := json.Unmarshal(payload, &state); err != nil {
			return nil, fmt.Errorf("checkpoint: unmarshaling history state: %w", err)
		}
		out = append(out, HistoryEntry{State: state, RecordedAt: recordedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: iterating history: %w", err)
	}
	return out, nil
}

// Sweep deletes checkpoints past retentionDays and trims each thread's
// history to maxPerThread entries, per spec.md §9's retention_days /
// max_per_thread configuration. Run from the worker mode's periodic loop.
func (s *Store) Sweep(ctx context.Context, retentionDays int, maxPerThread int) (deleted int64, err error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM orchestrator_checkpoints WHERE updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: sweeping stale snapshots: %w", err)
	}
	deleted += tag.RowsAffected()

	tag, err = s.pool.Exec(ctx, `
		DELETE FROM orchestrator_checkpoint_history
		WHERE (thread_id, recorded_at) NOT IN (
			SELECT thread_id, recorded_at FROM (
				SELECT thread_id, recorded_at,
				       row_number() OVER (PARTITION BY thread_id ORDER BY recorded_at DESC) AS rn
				FROM orchestrator_checkpoint_history
			) ranked
			WHERE rn <= $1
		)
	`, maxPerThread)
	if err != nil {
		return deleted, fmt.Errorf("checkpoint: trimming history: %w", err)
	}
	deleted += tag.RowsAffected()

	return deleted, nil
}
