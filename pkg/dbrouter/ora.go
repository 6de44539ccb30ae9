package dbrouter

import (
	"regexp"
)

// OracleErrorDetail is the translated shape from spec.md §7: "common codes
// (ORA-00904, ORA-00942, etc.) are translated into
// {error_code, title, explanation, suggestion}".
type OracleErrorDetail struct {
	ErrorCode   string `json:"error_code"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	Suggestion  string `json:"suggestion"`
}

var oraCodeRe = regexp.MustCompile(`ORA-(\d{5})`)

var oraCodeCatalog = map[string]OracleErrorDetail{
	"ORA-00904": {
		ErrorCode:   "ORA-00904",
		Title:       "invalid identifier",
		Explanation: "A column or table name in the generated SQL does not exist in the target schema.",
		Suggestion:  "Re-check the schema context and retry SQL generation with corrected identifiers.",
	},
	"ORA-00942": {
		ErrorCode:   "ORA-00942",
		Title:       "table or view does not exist",
		Explanation: "The referenced table or view is not visible to the connected user, or does not exist.",
		Suggestion:  "Verify the connection's schema grants and the table name casing.",
	},
	"ORA-00001": {
		ErrorCode:   "ORA-00001",
		Title:       "unique constraint violated",
		Explanation: "The statement attempted to insert a duplicate value into a column with a unique constraint.",
		Suggestion:  "Not expected for read-only analytical queries; review the generated SQL.",
	},
	"ORA-01017": {
		ErrorCode:   "ORA-01017",
		Title:       "invalid username/password",
		Explanation: "The configured database credentials were rejected.",
		Suggestion:  "Check the connection configuration for this database_type/connection_name.",
	},
	"ORA-12899": {
		ErrorCode:   "ORA-12899",
		Title:       "value too large for column",
		Explanation: "A literal in the generated SQL exceeds the target column's declared size.",
		Suggestion:  "Narrow the predicate or cast the literal explicitly.",
	},
}

// TranslateOracleError extracts an ORA-##### code from a raw driver error
// string and returns the catalog entry. If no known code is present, a
// generic entry is returned so callers always get a stable shape.
func TranslateOracleError(raw string) OracleErrorDetail {
	match := oraCodeRe.FindString(raw)
	if detail, ok := oraCodeCatalog[match]; ok {
		return detail
	}
	return OracleErrorDetail{
		ErrorCode:   match,
		Title:       "oracle error",
		Explanation: raw,
		Suggestion:  "Review the raw database error for details.",
	}
}

// classifyOracleError reports whether an ORA- code indicates a transient
// condition worth retrying (connection/resource exhaustion) versus a
// syntax/semantic error that should instead trigger repair.
func classifyOracleError(raw string) (recoverable bool) {
	code := oraCodeRe.FindString(raw)
	switch code {
	case "ORA-00904", "ORA-00942", "ORA-01017", "ORA-12899", "ORA-00001":
		return false
	case "ORA-12170", "ORA-03113", "ORA-03135", "ORA-12541", "ORA-01013":
		return true
	default:
		return false
	}
}
