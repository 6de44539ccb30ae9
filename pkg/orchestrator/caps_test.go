package orchestrator

import "testing"

func TestCapExitOutcome_RoutesToFormatResultsWhenRowsExist(t *testing.T) {
	s := &QueryState{ExecutionResult: &ExecutionResult{RowCount: 3}}
	outcome := capExitOutcome(s, string(NodeRepairSQL), "cap exceeded")
	if outcome.Kind != OutcomeContinue || outcome.Next != NodeFormatResults {
		t.Errorf("outcome = %+v, want Continue(format_results)", outcome)
	}
}

func TestCapExitOutcome_RoutesToErrorWhenNoRows(t *testing.T) {
	s := &QueryState{}
	outcome := capExitOutcome(s, string(NodeRepairSQL), "cap exceeded")
	if outcome.Kind != OutcomeContinue || outcome.Next != NodeError {
		t.Errorf("outcome = %+v, want Continue(error)", outcome)
	}
	if s.Error == "" {
		t.Error("expected Error to be populated")
	}
}

func TestTotalLoopAttemptsCap(t *testing.T) {
	s := &QueryState{RepairAttempts: MaxRepairAttempts, FallbackAttempts: MaxFallbackAttempts, PivotAttempts: MaxPivotAttempts}
	if got, want := s.TotalLoopAttempts(), MaxRepairAttempts+MaxFallbackAttempts+MaxPivotAttempts; got != want {
		t.Errorf("TotalLoopAttempts() = %d, want %d", got, want)
	}
	if !repairCapExceeded(s) || !fallbackCapExceeded(s) || !pivotCapExceeded(s) {
		t.Error("expected all caps to report exceeded at their limits")
	}
}
