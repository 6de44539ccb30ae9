// Package hitl implements the Human-in-the-Loop approval gate: suspending
// the orchestrator before execution and resuming on an external decision.
package hitl

import (
	"context"
	"fmt"

	"github.com/wisbric/amila/pkg/orchestrator"
)

// Decision is the caller's verdict on a pending query.
type Decision struct {
	Approved  bool
	EditedSQL string
	Reason    string
}

// CheckpointStore is the narrow persistence boundary the Gate needs.
// pkg/checkpoint.Store implements it; tests substitute an in-memory fake.
type CheckpointStore interface {
	Save(ctx context.Context, state *orchestrator.QueryState) error
	Load(ctx context.Context, threadID string) (*orchestrator.QueryState, error)
}

// EventPublisher is the narrow lifecycle-event boundary the Gate needs.
// pkg/lifecycle.Bus implements it via PublishLifecycle.
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, queryID string, state orchestrator.LifecycleState, traceID string, metadata map[string]any) error
}

// Gate pauses and resumes queries around the await_approval node. It does
// not auto-approve or auto-reject on a timeout — spec.md §4.5 makes that
// explicitly the operator's responsibility.
type Gate struct {
	checkpoints CheckpointStore
	bus         EventPublisher
}

// NewGate creates an approval gate over the given checkpoint store and
// lifecycle bus.
func NewGate(checkpoints CheckpointStore, bus EventPublisher) *Gate {
	return &Gate{checkpoints: checkpoints, bus: bus}
}

// RequestApproval checkpoints state with needs_approval=true, publishes
// pending_approval, and returns the Suspend outcome for the engine to exit
// on. Called by the await_approval node.
func (g *Gate) RequestApproval(ctx context.Context, state *orchestrator.QueryState) (orchestrator.Outcome, error) {
	state.NeedsApproval = true
	state.NextAction = orchestrator.ActionSuspend

	if err := g.checkpoints.Save(ctx, state); err != nil {
		return orchestrator.Outcome{}, fmt.Errorf("hitl: checkpointing pending approval: %w", err)
	}

	metadata := map[string]any{
		"sql_query":         state.SQLQuery,
		"validation_result": state.ValidationResult,
	}
	if err := g.bus.PublishLifecycle(ctx, state.QueryID, orchestrator.StatePendingApproval, state.TraceID, metadata); err != nil {
		return orchestrator.Outcome{}, fmt.Errorf("hitl: publishing pending_approval: %w", err)
	}

	return orchestrator.Suspend("awaiting_approval"), nil
}

// Approve loads the checkpoint for queryID, marks it approved (optionally
// replacing sql_query with a user-edited variant), saves it, and publishes
// an approved event. It does not resume the thread itself: the approve
// handler in internal/httpapi calls Engine.Resume afterwards.
func (g *Gate) Approve(ctx context.Context, queryID, threadID string, decision Decision) (*orchestrator.QueryState, error) {
	state, err := g.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("hitl: loading checkpoint: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("hitl: no checkpoint for thread %q", threadID)
	}

	if decision.EditedSQL != "" {
		state.SQLQuery = decision.EditedSQL
	}
	state.Approved = true
	state.NeedsApproval = false
	state.NextAction = orchestrator.ActionContinue

	if err := g.checkpoints.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("hitl: saving approved checkpoint: %w", err)
	}

	if err := g.bus.PublishLifecycle(ctx, state.QueryID, orchestrator.StateApproved, state.TraceID, nil); err != nil {
		return nil, fmt.Errorf("hitl: publishing approved event: %w", err)
	}

	return state, nil
}

// Reject records a rejection reason and publishes the terminal rejected
// event. The query does not resume after this.
func (g *Gate) Reject(ctx context.Context, threadID string, reason string) (*orchestrator.QueryState, error) {
	state, err := g.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("hitl: loading checkpoint: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("hitl: no checkpoint for thread %q", threadID)
	}

	state.Approved = false
	state.NeedsApproval = false
	state.NextAction = orchestrator.ActionTerminal
	state.Error = reason
	state.ErrorStage = string(orchestrator.NodeAwaitApproval)
	state.ErrorPayload = &orchestrator.ErrorPayload{
		Stage:   string(orchestrator.NodeAwaitApproval),
		Message: reason,
		Details: string(orchestrator.ErrApprovalRejected),
	}

	if err := g.checkpoints.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("hitl: saving rejected checkpoint: %w", err)
	}

	if err := g.bus.PublishLifecycle(ctx, state.QueryID, orchestrator.StateRejected, state.TraceID, map[string]any{"reason": reason}); err != nil {
		return nil, fmt.Errorf("hitl: publishing rejected event: %w", err)
	}

	return state, nil
}
