package httpapi

import (
	"context"
	"log/slog"

	"github.com/wisbric/amila/pkg/orchestrator"
	"github.com/wisbric/amila/pkg/resultstore"
	"github.com/wisbric/amila/pkg/webhook"
)

// queryResponse is spec.md §6.1's OrchestratorQueryResponse.
type queryResponse struct {
	QueryID       string                         `json:"query_id"`
	Status        string                         `json:"status"`
	SQLQuery      string                         `json:"sql_query,omitempty"`
	Results       *resultstore.Transport         `json:"results,omitempty"`
	Validation    *orchestrator.ValidationResult `json:"validation,omitempty"`
	NeedsApproval *bool                          `json:"needs_approval,omitempty"`
	Error         string                         `json:"error,omitempty"`
	TraceID       string                         `json:"trace_id,omitempty"`
}

// buildResponse maps a QueryState onto the wire shape, inlining (or
// truncating-with-reference, via resultstore.ToTransport) the execution
// result when one exists.
func buildResponse(state *orchestrator.QueryState) queryResponse {
	resp := queryResponse{
		QueryID:  state.QueryID,
		SQLQuery: state.SQLQuery,
		TraceID:  state.TraceID,
		Error:    state.Error,
	}

	switch {
	case state.NeedsApproval:
		resp.Status = "pending_approval"
		needsApproval := true
		resp.NeedsApproval = &needsApproval
	case state.Error != "":
		resp.Status = "error"
	default:
		resp.Status = "success"
	}

	if state.ValidationResult != nil {
		resp.Validation = state.ValidationResult
	}

	if state.ExecutionResult != nil {
		transport := resultstore.ToTransport(state.QueryID, *state.ExecutionResult)
		resp.Results = &transport
	}

	return resp
}

// isTerminal reports whether state's run has finished, errored, or been
// rejected — the point at which a webhook dispatch becomes eligible.
func isTerminal(state *orchestrator.QueryState) bool {
	return state.NextAction == orchestrator.ActionTerminal
}

// terminalLifecycleState classifies a terminal QueryState into the three
// lifecycle states webhook subscriptions filter on.
func terminalLifecycleState(state *orchestrator.QueryState) orchestrator.LifecycleState {
	if state.ErrorPayload != nil && state.ErrorPayload.Details == string(orchestrator.ErrApprovalRejected) {
		return orchestrator.StateRejected
	}
	if state.Error != "" {
		return orchestrator.StateError
	}
	return orchestrator.StateFinished
}

// dispatchWebhooks fires the webhook dispatcher for a terminal state in the
// background — delivery is not on the request's critical path, and a
// dispatch failure only logs, never fails the HTTP response that already
// carries the authoritative result.
func dispatchWebhooks(dispatcher *webhook.Dispatcher, logger *slog.Logger, state *orchestrator.QueryState) {
	if dispatcher == nil || !isTerminal(state) || state.UserID == "" {
		return
	}
	lifecycleState := terminalLifecycleState(state)
	metadata := map[string]any{
		"sql_query": state.SQLQuery,
		"error":     state.ErrorPayload,
	}
	if state.ExecutionResult != nil {
		metadata["row_count"] = state.ExecutionResult.RowCount
		metadata["rows"] = state.ExecutionResult.Rows
	}
	go func() {
		if err := dispatcher.Dispatch(context.Background(), state.UserID, state.QueryID, lifecycleState, metadata); err != nil {
			logger.Warn("dispatching webhooks", "query_id", state.QueryID, "error", err)
		}
	}()
}
