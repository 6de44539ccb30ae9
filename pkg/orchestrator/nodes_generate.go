package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wisbric/amila/pkg/llmadapter"
)

type sqlPlan struct {
	SQL        string `json:"sql"`
	Confidence int    `json:"confidence"`
}

// NodeGenerateSQLFn drafts a SQL statement from the user query, schema
// context, and (when present) hypothesis, targeting the query's declared
// database_type's dialect.
func NodeGenerateSQLFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	schemaJSON, _ := json.Marshal(state.Context.SchemaMetadata)

	prompt := fmt.Sprintf(
		"Question: %s\nHypothesis: %s\nDialect: %s\nSchema: %s\n\nRespond with JSON: {\"sql\": \"...\", \"confidence\": 0-100}",
		state.UserQuery, state.Hypothesis, state.DatabaseType, schemaJSON,
	)

	resp, err := deps.LLM.Complete(ctx, llmadapter.Request{
		System:    "You write a single read-only SQL statement for the given dialect and schema.",
		Prompt:    prompt,
		MaxTokens: 1024,
	})
	if err != nil {
		return fail(state, ErrLLM, string(NodeGenerateSQL), "generating SQL: "+err.Error())
	}

	plan, err := llmadapter.ExtractJSON[sqlPlan](resp)
	if err != nil {
		return fail(state, ErrLLM, string(NodeGenerateSQL), "parsing SQL generation response: "+err.Error())
	}
	if plan.SQL == "" {
		return fail(state, ErrLLM, string(NodeGenerateSQL), "completion produced no sql field")
	}

	state.SQLQuery = QuoteReservedIdentifiers(state.DatabaseType, NormalizeSQL(plan.SQL))
	state.SQLConfidence = plan.Confidence
	return Continue(NodeValidate)
}

type repairPlan struct {
	SQL string `json:"sql"`
}

// NodeRepairSQLFn asks the model to fix a SQL statement that failed
// validation, probing, or execution, carrying the failure reason as
// grounding. Caps at MaxRepairAttempts per spec.md §4.6.
func NodeRepairSQLFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	if repairCapExceeded(state) {
		return capExitOutcome(state, string(NodeRepairSQL), "repair attempts exhausted without a usable result")
	}
	state.RepairAttempts++

	prompt := fmt.Sprintf(
		"The following SQL failed: %s\nFailure reason: %s\nDialect: %s\n\nRespond with JSON: {\"sql\": \"...\"}",
		state.SQLQuery, state.Error, state.DatabaseType,
	)

	resp, err := deps.LLM.Complete(ctx, llmadapter.Request{
		System:    "You repair a single SQL statement given its failure reason. Preserve the original intent.",
		Prompt:    prompt,
		MaxTokens: 1024,
	})
	if err != nil {
		return fail(state, ErrLLM, string(NodeRepairSQL), "repairing SQL: "+err.Error())
	}

	plan, err := llmadapter.ExtractJSON[repairPlan](resp)
	if err != nil || plan.SQL == "" {
		return Continue(NodeGenerateFallbackSQL)
	}

	state.SQLQuery = QuoteReservedIdentifiers(state.DatabaseType, NormalizeSQL(plan.SQL))
	state.Error = ""
	state.ErrorStage = ""
	state.ErrorPayload = nil
	return Continue(NodeValidate)
}

type fallbackPlan struct {
	SQL string `json:"sql"`
}

// NodeGenerateFallbackSQLFn drops to a simpler, more conservative query
// shape after repair attempts are exhausted or fail outright. Caps at
// MaxFallbackAttempts per spec.md §4.6.
func NodeGenerateFallbackSQLFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	if fallbackCapExceeded(state) {
		return capExitOutcome(state, string(NodeGenerateFallbackSQL), "fallback attempts exhausted without a usable result")
	}
	state.FallbackAttempts++

	prompt := fmt.Sprintf(
		"Write the simplest possible SQL statement that still answers: %s\nDialect: %s\n\nRespond with JSON: {\"sql\": \"...\"}",
		state.UserQuery, state.DatabaseType,
	)

	resp, err := deps.LLM.Complete(ctx, llmadapter.Request{
		System:    "You write a minimal, conservative fallback SQL statement — prefer a single table, no joins, no aggregates.",
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if err != nil {
		return fail(state, ErrLLM, string(NodeGenerateFallbackSQL), "generating fallback SQL: "+err.Error())
	}

	plan, err := llmadapter.ExtractJSON[fallbackPlan](resp)
	if err != nil || plan.SQL == "" {
		return fail(state, ErrLLM, string(NodeGenerateFallbackSQL), "fallback generation produced no usable sql")
	}

	state.SQLQuery = QuoteReservedIdentifiers(state.DatabaseType, NormalizeSQL(plan.SQL))
	state.Error = ""
	state.ErrorStage = ""
	state.ErrorPayload = nil
	return Continue(NodeValidate)
}
