package resultstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/amila/pkg/orchestrator"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func TestStore_PutGetByQueryIDRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	result := orchestrator.ExecutionResult{
		Columns:         []string{"id", "name"},
		Rows:            [][]any{{1.0, "alice"}, {2.0, "bob"}},
		RowCount:        2,
		ExecutionTimeMS: 42,
	}

	hash, err := s.Put(ctx, "query-1", "SELECT * FROM users", orchestrator.DatabaseType("postgres"), result)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if hash == "" {
		t.Fatal("expected a non-empty hash")
	}

	got, err := s.GetByQueryID(ctx, "query-1")
	if err != nil {
		t.Fatalf("GetByQueryID: %v", err)
	}
	if got == nil {
		t.Fatal("expected a cached result")
	}
	if got.RowCount != 2 || len(got.Rows) != 2 {
		t.Errorf("got = %+v, want 2 rows", got)
	}
}

func TestStore_GetByQueryIDMissingReturnsNil(t *testing.T) {
	s := testStore(t)
	got, err := s.GetByQueryID(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetByQueryID: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil for a missing query", got)
	}
}

func TestStore_GetByHashMatchesPut(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	result := orchestrator.ExecutionResult{Columns: []string{"n"}, Rows: [][]any{{1.0}}, RowCount: 1}
	hash, err := s.Put(ctx, "query-2", "SELECT 1", orchestrator.DatabaseType("oracle"), result)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.GetByHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if got == nil || got.RowCount != 1 {
		t.Errorf("got = %+v, want the cached result", got)
	}
}

func TestHashKey_SameNormalizedSQLAndDBTypeMatch(t *testing.T) {
	a := HashKey("SELECT  *  FROM users", orchestrator.DatabaseType("postgres"))
	b := HashKey("SELECT *\n FROM users;", orchestrator.DatabaseType("postgres"))
	if a != b {
		t.Errorf("expected normalization to make keys match: %q != %q", a, b)
	}

	c := HashKey("SELECT * FROM users", orchestrator.DatabaseType("oracle"))
	if a == c {
		t.Error("expected different database types to produce different keys")
	}
}

func TestToTransport_InlinesSmallResultWithoutReference(t *testing.T) {
	result := orchestrator.ExecutionResult{Columns: []string{"id"}, Rows: [][]any{{1.0}, {2.0}}, RowCount: 2}
	transport := ToTransport("query-3", result)
	if transport.Reference != nil {
		t.Error("expected no reference for a small result")
	}
	if len(transport.Rows) != 2 {
		t.Errorf("expected all rows inlined, got %d", len(transport.Rows))
	}
}

func TestToTransport_TruncatesLargeResultAndAttachesReference(t *testing.T) {
	rows := make([][]any, 300)
	for i := range rows {
		rows[i] = []any{float64(i)}
	}
	result := orchestrator.ExecutionResult{Columns: []string{"id"}, Rows: rows, RowCount: 300}

	transport := ToTransport("query-4", result)
	if transport.Reference == nil {
		t.Fatal("expected a reference for a truncated result")
	}
	if transport.Reference.RowCount != 300 {
		t.Errorf("reference row count = %d, want 300", transport.Reference.RowCount)
	}
	if len(transport.Rows) != previewRows {
		t.Errorf("preview rows = %d, want %d", len(transport.Rows), previewRows)
	}
}
