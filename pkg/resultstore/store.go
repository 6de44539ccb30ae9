// Package resultstore caches executed query results so large outputs can
// be returned to clients as a truncated preview plus a reference, per
// spec.md §4.4/§6.4.
package resultstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/amila/pkg/orchestrator"
)

const (
	maxInlineRows           = 200
	previewRows             = 50
	smallResultTTL          = 5 * time.Minute
	largeResultTTL          = 6 * time.Hour
	largeResultRowThreshold = 1000
)

// entry is the envelope actually stored under a content hash — the
// execution result plus the database type it was run against, needed to
// reconstruct the cache key on a later lookup-by-hash.
type entry struct {
	Result       orchestrator.ExecutionResult `json:"result"`
	DatabaseType orchestrator.DatabaseType    `json:"database_type"`
}

// Reference points a client at a cached result too large to inline, per
// spec.md §6.1's OrchestratorQueryResponse.result_ref shape.
type Reference struct {
	QueryID  string   `json:"query_id"`
	RowCount int      `json:"row_count"`
	Columns  []string `json:"columns"`
}

// Store is a Redis-backed result cache, grounded on the same
// per-entity-key Redis usage pattern as pkg/lifecycle.Bus (here plain
// string keys with TTLs instead of retention lists, since results are
// cached by content hash rather than appended to a per-query timeline).
// It implements orchestrator.ResultCache.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps an already-connected Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// HashKey computes the cache key for a normalized SQL statement and
// database type: hash(normalize_sql(sql)||db_type), per spec.md §4.4.
func HashKey(sql string, dbType orchestrator.DatabaseType) string {
	normalized := orchestrator.NormalizeForCacheKey(sql)
	sum := sha256.Sum256([]byte(normalized + "||" + string(dbType)))
	return hex.EncodeToString(sum[:])
}

func resultKey(hash string) string  { return "qresult:" + hash }
func refKey(queryID string) string  { return "qref:" + queryID }
func byIDKey(queryID string) string { return "qresultById:" + queryID }

// Put caches result under its content hash, registers queryID → hash, and
// duplicates the entry under the query_id key so reads by query_id never
// need a second round trip. TTL scales with result size per spec.md §4.4:
// 5 minutes for small results, up to 6 hours for large ones.
func (s *Store) Put(ctx context.Context, queryID, sql string, dbType orchestrator.DatabaseType, result orchestrator.ExecutionResult) (string, error) {
	hash := HashKey(sql, dbType)
	payload, err := json.Marshal(entry{Result: result, DatabaseType: dbType})
	if err != nil {
		return "", fmt.Errorf("resultstore: marshaling result: %w", err)
	}

	ttl := smallResultTTL
	if result.RowCount >= largeResultRowThreshold {
		ttl = largeResultTTL
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, resultKey(hash), payload, ttl)
	pipe.Set(ctx, refKey(queryID), hash, ttl)
	pipe.Set(ctx, byIDKey(queryID), payload, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("resultstore: writing cache entries: %w", err)
	}
	return hash, nil
}

// GetByQueryID reads a cached result by query_id, preferring the
// reference path (qref → qresult) and falling through to the direct
// qresultById entry, per spec.md §4.4: reads by query_id prefer the
// reference path and fall through to a direct query_id keyed entry.
func (s *Store) GetByQueryID(ctx context.Context, queryID string) (*orchestrator.ExecutionResult, error) {
	hash, err := s.rdb.Get(ctx, refKey(queryID)).Result()
	if err == nil {
		payload, err := s.rdb.Get(ctx, resultKey(hash)).Result()
		if err == nil {
			return decodeResult(payload)
		}
		if err != redis.Nil {
			return nil, fmt.Errorf("resultstore: reading referenced result: %w", err)
		}
	} else if err != redis.Nil {
		return nil, fmt.Errorf("resultstore: reading reference: %w", err)
	}

	payload, err := s.rdb.Get(ctx, byIDKey(queryID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resultstore: reading direct entry: %w", err)
	}
	return decodeResult(payload)
}

// GetByHash reads a cached result directly by its content hash, used to
// dedupe identical SQL across different query_ids before re-executing.
func (s *Store) GetByHash(ctx context.Context, hash string) (*orchestrator.ExecutionResult, error) {
	payload, err := s.rdb.Get(ctx, resultKey(hash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resultstore: reading by hash: %w", err)
	}
	return decodeResult(payload)
}

func decodeResult(payload string) (*orchestrator.ExecutionResult, error) {
	var e entry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("resultstore: decoding cached result: %w", err)
	}
	return &e.Result, nil
}

// Transport is what an HTTP handler actually returns: either the full
// result inline, or a truncated preview plus a Reference, per spec.md
// §4.4's transport-sizing rule.
type Transport struct {
	Columns         []string   `json:"columns"`
	Rows            [][]any    `json:"rows"`
	RowCount        int        `json:"row_count"`
	ExecutionTimeMS int64      `json:"execution_time_ms"`
	Reference       *Reference `json:"result_ref,omitempty"`
}

// ToTransport applies the row_count > 200 / len(rows) > 200 truncation
// rule, attaching a Reference when truncated.
func ToTransport(queryID string, result orchestrator.ExecutionResult) Transport {
	if result.RowCount <= maxInlineRows && len(result.Rows) <= maxInlineRows {
		return Transport{
			Columns:         result.Columns,
			Rows:            result.Rows,
			RowCount:        result.RowCount,
			ExecutionTimeMS: result.ExecutionTimeMS,
		}
	}

	rows := result.Rows
	if len(rows) > previewRows {
		rows = rows[:previewRows]
	}
	return Transport{
		Columns:         result.Columns,
		Rows:            rows,
		RowCount:        result.RowCount,
		ExecutionTimeMS: result.ExecutionTimeMS,
		Reference: &Reference{
			QueryID:  queryID,
			RowCount: result.RowCount,
			Columns:  result.Columns,
		},
	}
}
