package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/wisbric/amila/pkg/dbrouter"
	"github.com/wisbric/amila/pkg/llmadapter"
)

// NodeAwaitApprovalFn suspends the query for human review via the
// configured ApprovalGate. Resumption happens out of band (HTTP
// approve/reject endpoint), not by this node being called again with a
// different outcome — the engine re-enters the graph at execute or exits
// to rejected once Approved/NextAction reflect the decision.
func NodeAwaitApprovalFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	if state.Approved {
		return Continue(NodeExecute)
	}
	if state.NextAction == ActionTerminal {
		return Terminal()
	}

	outcome, err := deps.Approval.RequestApproval(ctx, state)
	if err != nil {
		return fail(state, ErrInternal, string(NodeAwaitApproval), "requesting approval: "+err.Error())
	}
	return outcome
}

// NodeExecuteFn runs the approved SQL against the target backend through
// the Resilience Layer and keeps the full result set on state —
// spec.md §4.4 requires the cache write in NodeFormatResultsFn to see
// every row; transport-sizing truncation happens only at the HTTP
// response boundary (resultstore.ToTransport), never here.
func NodeExecuteFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	adapter, err := deps.Router.Get(state.DatabaseType)
	if err != nil {
		return fail(state, ErrInternal, string(NodeExecute), "no adapter for database type: "+err.Error())
	}

	started := time.Now()
	result, err := deps.Breakers.Execute(ctx, "execute:"+string(state.DatabaseType), func(ctx context.Context) (any, error) {
		return adapter.ExecuteSQL(ctx, state.SQLQuery, state.ConnectionName, state.UserID)
	})
	elapsed := time.Since(started)

	if err != nil {
		state.Error = err.Error()
		state.ErrorStage = string(NodeExecute)

		if isRecoverableErr(err) {
			if repairCapExceeded(state) {
				return Continue(NodeGenerateFallbackSQL)
			}
			return Continue(NodeRepairSQL)
		}
		return fail(state, ErrDBNonRecoverable, string(NodeExecute), err.Error())
	}

	dbResult := result.(dbrouter.Result)
	state.ExecutionResult = &ExecutionResult{
		Columns:         dbResult.Columns,
		Rows:            dbResult.Rows,
		RowCount:        dbResult.RowCount,
		ExecutionTimeMS: elapsed.Milliseconds(),
	}

	return Continue(NodeValidateResults)
}

func isRecoverableErr(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection", "deadline", "ora-12", "ora-03", "unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

type qualityPlan struct {
	QualityScore float64  `json:"quality_score"`
	Issues       []string `json:"issues,omitempty"`
}

// NodeValidateResultsFn asks the model to judge whether the result set
// plausibly answers the user's question, routing to pivot_strategy below a
// quality threshold and to format_results otherwise.
func NodeValidateResultsFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	const qualityThreshold = 0.5

	resp, err := deps.LLM.Complete(ctx, llmadapter.Request{
		System: "Judge whether this result set plausibly answers the question. Respond with JSON: " +
			`{"quality_score": 0.0-1.0, "issues": ["..."]}`,
		Prompt:    state.UserQuery,
		MaxTokens: 256,
	})
	if err != nil {
		// A judgment-call failure isn't fatal to an otherwise successful
		// execution — fall through to format_results rather than error.
		deps.Logger.Warn("result validation degraded", "query_id", state.QueryID, "error", err)
		return Continue(NodeFormatResults)
	}

	plan, err := llmadapter.ExtractJSON[qualityPlan](resp)
	if err != nil {
		return Continue(NodeFormatResults)
	}

	state.ResultAnalysis = &ResultAnalysis{QualityScore: plan.QualityScore, Issues: plan.Issues}

	if plan.QualityScore < qualityThreshold {
		if pivotCapExceeded(state) {
			return Continue(NodeFormatResults)
		}
		state.PivotAttempts++
		return Continue(NodePivotStrategy)
	}
	return Continue(NodeFormatResults)
}

type pivotPlan struct {
	Hypothesis string `json:"hypothesis"`
}

// NodePivotStrategyFn asks the model for a revised hypothesis when the
// executed result failed the quality check, re-entering generation from a
// different angle rather than simply repairing syntax.
func NodePivotStrategyFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	issues := strings.Join(state.ResultAnalysis.Issues, "; ")
	resp, err := deps.LLM.Complete(ctx, llmadapter.Request{
		System: `Propose a different query strategy given the prior attempt's shortcomings. Respond with JSON: {"hypothesis": "..."}`,
		Prompt:    "Question: " + state.UserQuery + "\nPrior issues: " + issues,
		MaxTokens: 512,
	})
	if err != nil {
		return Continue(NodeFormatResults)
	}

	plan, err := llmadapter.ExtractJSON[pivotPlan](resp)
	if err != nil || plan.Hypothesis == "" {
		return Continue(NodeFormatResults)
	}

	state.Hypothesis = plan.Hypothesis
	return Continue(NodeGenerateHypothesis)
}

// NodeFormatResultsFn is the successful terminal node: it stamps
// next_action and, when an execution result exists, writes it through to
// the Result Store so a client can fetch it later by query_id even after
// this run's ExecutionResult falls out of the checkpoint's retention
// window. A cache-write failure is logged, not fatal — the result already
// lives on QueryState and is returned inline to the caller regardless.
func NodeFormatResultsFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	state.NextAction = ActionTerminal
	if deps.Results != nil && state.ExecutionResult != nil {
		if _, err := deps.Results.Put(ctx, state.QueryID, state.SQLQuery, state.DatabaseType, *state.ExecutionResult); err != nil {
			deps.Logger.Warn("caching execution result", "query_id", state.QueryID, "error", err)
		}
	}
	return Terminal()
}

// NodeErrorFn is the failure terminal node. ErrorPayload is expected to
// already be populated by whichever node routed here via fail().
func NodeErrorFn(ctx context.Context, deps *Deps, state *QueryState) Outcome {
	state.NextAction = ActionTerminal
	return Terminal()
}
