package orchestrator

import "testing"

func TestNormalizeSQL_StripsCommentsAndWhitespace(t *testing.T) {
	in := "SELECT  *\nFROM users -- all of them\n/* block comment */ WHERE id = 1;"
	got := NormalizeSQL(in)
	want := "SELECT * FROM users WHERE id = 1"
	if got != want {
		t.Errorf("NormalizeSQL() = %q, want %q", got, want)
	}
}

func TestNormalizeSQL_Idempotent(t *testing.T) {
	in := "SELECT * FROM t -- x\n WHERE a=1;"
	once := NormalizeSQL(in)
	twice := NormalizeSQL(once)
	if once != twice {
		t.Errorf("NormalizeSQL not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestNormalizeForCacheKey_PlaceholderizesLiterals(t *testing.T) {
	got := NormalizeForCacheKey("SELECT * FROM t WHERE name = 'alice' AND age = 30")
	want := "SELECT * FROM t WHERE name = ? AND age = ?"
	if got != want {
		t.Errorf("NormalizeForCacheKey() = %q, want %q", got, want)
	}
}

func TestQuoteIdentifier_ReservedWordsByDialect(t *testing.T) {
	if got := QuoteIdentifier(DatabaseOracle, "level"); got != `"LEVEL"` {
		t.Errorf("Oracle quoting = %q, want %q", got, `"LEVEL"`)
	}
	if got := QuoteIdentifier(DatabaseDoris, "order"); got != "`order`" {
		t.Errorf("Doris quoting = %q, want %q", got, "`order`")
	}
	if got := QuoteIdentifier(DatabasePostgres, "name"); got != "name" {
		t.Errorf("non-reserved identifier should pass through unchanged, got %q", got)
	}
}

func TestQuoteReservedIdentifiers_QuotesBareColumnNotClauseKeyword(t *testing.T) {
	got := QuoteReservedIdentifiers(DatabaseOracle, "SELECT level, name FROM employees ORDER BY level")
	want := `SELECT "LEVEL", name FROM employees ORDER BY "LEVEL"`
	if got != want {
		t.Errorf("QuoteReservedIdentifiers() = %q, want %q", got, want)
	}
}

func TestQuoteReservedIdentifiers_LeavesOrderByAndStringLiteralsAlone(t *testing.T) {
	got := QuoteReservedIdentifiers(DatabaseDoris, "SELECT * FROM t WHERE note = 'order' GROUP BY id ORDER BY id")
	want := "SELECT * FROM t WHERE note = 'order' GROUP BY id ORDER BY id"
	if got != want {
		t.Errorf("QuoteReservedIdentifiers() = %q, want %q", got, want)
	}
}

func TestShouldSkipProbe_SkipsOnGroupByAndNonOracle(t *testing.T) {
	if !shouldSkipProbe(DatabasePostgres, "SELECT 1") {
		t.Error("expected non-Oracle backend to always skip probe")
	}
	if !shouldSkipProbe(DatabaseOracle, "SELECT a, count(*) FROM t GROUP BY a") {
		t.Error("expected GROUP BY to skip probe")
	}
	if shouldSkipProbe(DatabaseOracle, "SELECT * FROM t WHERE note = 'contains union keyword'") {
		t.Error("expected a literal containing a skip token to not trigger a skip")
	}
}
