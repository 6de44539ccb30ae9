package orchestrator

import "strings"

// probeSkipTokens are the SQL constructs spec.md §4.1 exempts from the
// structural probe. A full SQL parser would give an exact answer, but none
// exists in the retrieved corpus to ground one on, so the check is a
// substring scan.
var probeSkipTokens = []string{"group by", "fetch first", "offset", "union"}

// shouldSkipProbe decides whether probe_sql should be bypassed, per the
// tie-break rule: skip on GROUP BY/FETCH FIRST/OFFSET/UNION, or when the
// backend is not Oracle. It scans tokens outside string literals only, so
// a literal value containing e.g. "union" does not trigger a false skip.
func shouldSkipProbe(dbType DatabaseType, sql string) bool {
	if dbType != DatabaseOracle {
		return true
	}
	normalized := strings.ToLower(stripStringLiterals(sql))
	for _, tok := range probeSkipTokens {
		if strings.Contains(normalized, tok) {
			return true
		}
	}
	return false
}

// stripStringLiterals replaces the contents of single-quoted string
// literals with spaces, preserving length and quote delimiters so that
// keyword tokens appearing only inside a literal never match the skip scan.
func stripStringLiterals(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	inString := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'' && !inString:
			inString = true
			b.WriteByte(c)
		case c == '\'' && inString:
			// Oracle/ANSI escape: doubled quote stays inside the literal.
			if i+1 < len(sql) && sql[i+1] == '\'' {
				b.WriteByte(' ')
				b.WriteByte(' ')
				i++
				continue
			}
			inString = false
			b.WriteByte(c)
		case inString:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
