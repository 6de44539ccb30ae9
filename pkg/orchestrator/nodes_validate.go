package orchestrator

import (
	"context"
	"strings"
)

// destructiveTokens are statement shapes validate rejects outright —
// Amila only ever runs read queries (spec.md §1's read-only non-goal).
var destructiveTokens = []string{
	"insert ", "update ", "delete ", "drop ", "alter ", "truncate ", "grant ", "revoke ", "create ",
}

// highRiskTokens raise risk_level without rejecting the query outright.
var highRiskTokens = []string{"join", "union", "group by", "having", "subquery", "with "}

// NodeValidateFn applies structural and risk-based validation to the
// generated SQL, per spec.md §4.4. Every query requires HITL review in
// this design: valid SQL goes to probe_sql for Oracle when the shape allows
// it, straight to await_approval otherwise. Invalid SQL goes to repair_sql,
// or to generate_fallback_sql once the repair cap is reached. risk_level
// does not affect routing.
func NodeValidateFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	lowered := strings.ToLower(stripStringLiterals(state.SQLQuery))

	result := &ValidationResult{IsValid: true, RiskLevel: "low", RequiresApproval: true}

	if strings.TrimSpace(lowered) == "" {
		result.IsValid = false
		result.Warnings = append(result.Warnings, "empty statement")
	}
	if !strings.HasPrefix(strings.TrimSpace(lowered), "select") && !strings.HasPrefix(strings.TrimSpace(lowered), "with") {
		result.IsValid = false
		result.Warnings = append(result.Warnings, "only SELECT/WITH statements are permitted")
	}
	for _, tok := range destructiveTokens {
		if strings.Contains(" "+lowered+" ", " "+strings.TrimSpace(tok)+" ") {
			result.IsValid = false
			result.Warnings = append(result.Warnings, "statement contains a mutating clause: "+strings.TrimSpace(tok))
		}
	}
	for _, tok := range highRiskTokens {
		if strings.Contains(lowered, tok) {
			result.RiskLevel = "medium"
		}
	}

	state.ValidationResult = result

	if !result.IsValid {
		if repairCapExceeded(state) {
			return Continue(NodeGenerateFallbackSQL)
		}
		state.Error = strings.Join(result.Warnings, "; ")
		state.ErrorStage = string(NodeValidate)
		return Continue(NodeRepairSQL)
	}

	if probeSQLAllowed(state.DatabaseType) && !shouldSkipProbe(state.DatabaseType, state.SQLQuery) {
		return Continue(NodeProbeSQL)
	}
	return Continue(NodeAwaitApproval)
}

// NodeProbeSQLFn issues an Oracle structural dry-run (EXPLAIN PLAN
// equivalent) via the adapter's ExecuteSQL with a zero-row guard, to catch
// identifier/type errors before a human ever sees the query. Any execution
// error here routes to repair rather than failing the query outright.
func NodeProbeSQLFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	adapter, err := deps.Router.Get(state.DatabaseType)
	if err != nil {
		return fail(state, ErrInternal, string(NodeProbeSQL), "no adapter for database type: "+err.Error())
	}

	probeSQL := "SELECT * FROM (" + state.SQLQuery + ") WHERE 1 = 0"

	_, err = deps.Breakers.Execute(ctx, "probe:"+string(state.DatabaseType), func(ctx context.Context) (any, error) {
		return adapter.ExecuteSQL(ctx, probeSQL, state.ConnectionName, state.UserID)
	})
	if err != nil {
		state.Error = "structural probe failed: " + err.Error()
		state.ErrorStage = string(NodeProbeSQL)
		return Continue(NodeRepairSQL)
	}

	return Continue(NodeAwaitApproval)
}
