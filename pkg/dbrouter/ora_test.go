package dbrouter

import "testing"

func TestTranslateOracleError_KnownCode(t *testing.T) {
	detail := TranslateOracleError(`ORA-00942: table or view does not exist`)

	if detail.ErrorCode != "ORA-00942" {
		t.Errorf("ErrorCode = %q, want %q", detail.ErrorCode, "ORA-00942")
	}
	if detail.Title == "" || detail.Suggestion == "" {
		t.Errorf("expected populated title/suggestion, got %+v", detail)
	}
}

func TestTranslateOracleError_UnknownCode(t *testing.T) {
	detail := TranslateOracleError(`ORA-99999: some new error`)

	if detail.ErrorCode != "ORA-99999" {
		t.Errorf("ErrorCode = %q, want %q", detail.ErrorCode, "ORA-99999")
	}
	if detail.Explanation == "" {
		t.Error("expected a fallback explanation for an unknown code")
	}
}

func TestClassifyOracleError(t *testing.T) {
	cases := []struct {
		raw         string
		recoverable bool
	}{
		{"ORA-00904: invalid identifier", false},
		{"ORA-12170: TNS:Connect timeout occurred", true},
		{"ORA-03113: end-of-file on communication channel", true},
		{"ORA-00001: unique constraint violated", false},
	}

	for _, tc := range cases {
		if got := classifyOracleError(tc.raw); got != tc.recoverable {
			t.Errorf("classifyOracleError(%q) = %v, want %v", tc.raw, got, tc.recoverable)
		}
	}
}
