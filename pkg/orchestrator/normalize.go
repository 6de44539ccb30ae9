package orchestrator

import (
	"regexp"
	"strings"
)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	numericLitRe   = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	stringLitRe    = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// NormalizeSQL implements spec.md §4.4's normalization: strip comments,
// collapse whitespace runs, drop a trailing semicolon. Case is left as it
// is. It underlies NormalizeForCacheKey (the Result Store's cache key) and
// cleans the SQL the generate, repair and fallback nodes produce; probe.go's
// skip check does not use it. NormalizeSQL is idempotent:
// NormalizeSQL(NormalizeSQL(s)) == NormalizeSQL(s).
func NormalizeSQL(sql string) string {
	s := lineCommentRe.ReplaceAllString(sql, "")
	s = blockCommentRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	s = strings.TrimSpace(s)
	return s
}

// NormalizeForCacheKey additionally placeholderizes numeric and string
// literals so structurally identical queries with different literal values
// share a cache entry, per spec.md §4.4's "optionally normalize... for
// higher cache hit rates". Used only for the cache key, never for the SQL
// that is actually executed.
func NormalizeForCacheKey(sql string) string {
	s := NormalizeSQL(sql)
	s = stringLitRe.ReplaceAllString(s, "?")
	s = numericLitRe.ReplaceAllString(s, "?")
	return s
}

// reservedWords is a conservative set of SQL keywords commonly used as
// column/table names that backends disallow unquoted. Not exhaustive —
// widening this list only ever causes an unnecessary (but harmless) quote.
var reservedWords = map[string]struct{}{
	"user": {}, "order": {}, "group": {}, "table": {}, "level": {},
	"date": {}, "comment": {}, "session": {}, "size": {}, "number": {},
	"access": {}, "resource": {}, "start": {}, "type": {}, "uid": {},
}

func isReserved(identifier string) bool {
	_, ok := reservedWords[strings.ToLower(identifier)]
	return ok
}

// QuoteIdentifier normalizes a bare column/table identifier per spec.md
// §4.1's tie-break rule: double-quoted for Oracle, back-ticked for Doris,
// upper-snake passthrough preserved elsewhere (Postgres folds unquoted
// identifiers to lowercase, so a reserved word there is upper-cased and
// left unquoted).
func QuoteIdentifier(dbType DatabaseType, identifier string) string {
	if !isReserved(identifier) {
		return identifier
	}
	switch dbType {
	case DatabaseOracle:
		return `"` + strings.ToUpper(identifier) + `"`
	case DatabaseDoris:
		return "`" + identifier + "`"
	default:
		return strings.ToUpper(identifier)
	}
}

var identifierTokenRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// clauseGuard maps a reserved word that also doubles as a SQL clause
// keyword to the word that must immediately follow it for that occurrence
// to be left alone as syntax rather than quoted as an identifier.
var clauseGuard = map[string]string{
	"order": "by",
	"group": "by",
	"start": "with",
}

// QuoteReservedIdentifiers wraps every bare reserved-word identifier in sql
// with QuoteIdentifier's dialect-specific quoting before validation, per
// spec.md §4.1. String literal contents are left untouched, and the
// clauseGuard phrases (ORDER BY, GROUP BY, START WITH) are recognized as
// syntax rather than identifiers so generated SQL isn't corrupted.
func QuoteReservedIdentifiers(dbType DatabaseType, sql string) string {
	var out strings.Builder
	last := 0
	for _, loc := range stringLitRe.FindAllStringIndex(sql, -1) {
		out.WriteString(quoteReservedInSegment(dbType, sql[last:loc[0]]))
		out.WriteString(sql[loc[0]:loc[1]])
		last = loc[1]
	}
	out.WriteString(quoteReservedInSegment(dbType, sql[last:]))
	return out.String()
}

func quoteReservedInSegment(dbType DatabaseType, segment string) string {
	matches := identifierTokenRe.FindAllStringIndex(segment, -1)
	if len(matches) == 0 {
		return segment
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		word := segment[m[0]:m[1]]
		b.WriteString(segment[last:m[0]])
		if isReserved(word) && !isClauseKeywordUsage(word, segment[m[1]:]) {
			b.WriteString(QuoteIdentifier(dbType, word))
		} else {
			b.WriteString(word)
		}
		last = m[1]
	}
	b.WriteString(segment[last:])
	return b.String()
}

func isClauseKeywordUsage(word, rest string) bool {
	guard, ok := clauseGuard[strings.ToLower(word)]
	if !ok {
		return false
	}
	trimmed := strings.TrimLeft(rest, " \t\n")
	return len(trimmed) >= len(guard) && strings.EqualFold(trimmed[:len(guard)], guard)
}
