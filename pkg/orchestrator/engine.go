package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/amila/internal/telemetry"
)

// CheckpointStore is the narrow boundary the engine persists through.
// pkg/checkpoint.Store implements this.
type CheckpointStore interface {
	Save(ctx context.Context, state *QueryState) error
	Load(ctx context.Context, threadID string) (*QueryState, error)
}

// EventPublisher is the narrow boundary the engine emits lifecycle events
// through. pkg/lifecycle.Bus implements this via its Event/Publish shape;
// the engine constructs the event itself so it doesn't need to import
// pkg/lifecycle (avoiding a dependency cycle symmetrical to ApprovalGate's).
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, queryID string, state LifecycleState, traceID string, metadata map[string]any) error
}

// registry maps a NodeName to its implementing function. Built once at
// Engine construction; the graph topology itself lives in graph.go.
func nodeRegistry() map[NodeName]Node {
	return map[NodeName]Node{
		NodeUnderstand:          NodeUnderstandFn,
		NodeRetrieveContext:     NodeRetrieveContextFn,
		NodeDecompose:           NodeDecomposeFn,
		NodeGenerateHypothesis:  NodeGenerateHypothesisFn,
		NodeGenerateSQL:         NodeGenerateSQLFn,
		NodeValidate:            NodeValidateFn,
		NodeProbeSQL:            NodeProbeSQLFn,
		NodeAwaitApproval:       NodeAwaitApprovalFn,
		NodeExecute:             NodeExecuteFn,
		NodeValidateResults:     NodeValidateResultsFn,
		NodePivotStrategy:       NodePivotStrategyFn,
		NodeRepairSQL:           NodeRepairSQLFn,
		NodeGenerateFallbackSQL: NodeGenerateFallbackSQLFn,
		NodeFormatResults:       NodeFormatResultsFn,
		NodeError:               NodeErrorFn,
	}
}

// nodeLifecycleState maps the node about to run to the LifecycleState
// published before it runs, per spec.md §6.2's event-per-transition model.
// Nodes with no direct spec.md state (decompose, probe_sql, repair,
// fallback, pivot) publish nothing distinct — their work is reflected in
// the surrounding states.
var nodeLifecycleState = map[NodeName]LifecycleState{
	NodeUnderstand:      StatePlanning,
	NodeRetrieveContext: StatePlanning,
	NodeGenerateSQL:     StateGeneratingSQL,
	NodeValidate:        StateValidating,
	NodeExecute:         StateExecuting,
	NodeValidateResults: StateValidatingResults,
}

// Engine drives QueryState through the node graph, checkpointing after
// every transition and publishing a lifecycle event whenever the node
// about to run has one. Modeled on the teacher's pkg/escalation.Engine:
// a small dependency-injected driver looping over a registry of named
// steps, generalized from escalation's fixed linear chain to a routed
// graph with suspend points.
type Engine struct {
	deps        *Deps
	nodes       map[NodeName]Node
	checkpoints CheckpointStore
	events      EventPublisher
	logger      *slog.Logger
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(deps *Deps, checkpoints CheckpointStore, events EventPublisher, logger *slog.Logger) *Engine {
	return &Engine{
		deps:        deps,
		nodes:       nodeRegistry(),
		checkpoints: checkpoints,
		events:      events,
		logger:      logger,
	}
}

// Submit starts a new query at the understand node and runs it until it
// suspends or terminates.
func (e *Engine) Submit(ctx context.Context, userQuery string, dbType DatabaseType, connection, userID, userRole, traceID string) (*QueryState, error) {
	now := time.Now()
	state := &QueryState{
		QueryID:        uuid.NewString(),
		ThreadID:       uuid.NewString(),
		UserID:         userID,
		UserRole:       userRole,
		TraceID:        traceID,
		UserQuery:      userQuery,
		DatabaseType:   dbType,
		ConnectionName: connection,
		CurrentNode:    NodeUnderstand,
		NextAction:     ActionContinue,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.publish(ctx, state, StateReceived, nil); err != nil {
		e.logger.Warn("publishing received event", "query_id", state.QueryID, "error", err)
	}

	return state, e.runLoop(ctx, state)
}

// SubmitSQL starts a new query directly at the validate node, skipping
// natural-language understanding — spec.md §6.1's POST /queries/submit
// ("direct SQL execution. Same response shape").
func (e *Engine) SubmitSQL(ctx context.Context, sql string, dbType DatabaseType, connection, userID, userRole, traceID string) (*QueryState, error) {
	now := time.Now()
	state := &QueryState{
		QueryID:        uuid.NewString(),
		ThreadID:       uuid.NewString(),
		UserID:         userID,
		UserRole:       userRole,
		TraceID:        traceID,
		UserQuery:      sql,
		SQLQuery:       sql,
		DatabaseType:   dbType,
		ConnectionName: connection,
		CurrentNode:    NodeValidate,
		NextAction:     ActionContinue,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.publish(ctx, state, StateReceived, nil); err != nil {
		e.logger.Warn("publishing received event", "query_id", state.QueryID, "error", err)
	}

	return state, e.runLoop(ctx, state)
}

// Resume reloads the checkpoint for threadID and continues the run loop
// from state.CurrentNode. Called after an HITL approve/reject decision has
// already mutated and saved the checkpoint (see pkg/hitl.Gate).
func (e *Engine) Resume(ctx context.Context, threadID string) (*QueryState, error) {
	state, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading checkpoint for resume: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("orchestrator: no checkpoint for thread %q", threadID)
	}
	return state, e.runLoop(ctx, state)
}

// runLoop repeatedly executes state.CurrentNode until the node returns
// Suspend or Terminal, checkpointing and publishing after every step. A
// node returning an undeclared successor is a programming error and
// aborts the run rather than silently routing — checkRouting is the
// fail-closed gate spec.md §4.1 requires of the routing table.
func (e *Engine) runLoop(ctx context.Context, state *QueryState) error {
	for {
		node, ok := e.nodes[state.CurrentNode]
		if !ok {
			return fmt.Errorf("orchestrator: no implementation registered for node %q", state.CurrentNode)
		}

		if lifecycleState, ok := nodeLifecycleState[state.CurrentNode]; ok {
			if err := e.publish(ctx, state, lifecycleState, nil); err != nil {
				e.logger.Warn("publishing lifecycle event", "query_id", state.QueryID, "node", state.CurrentNode, "error", err)
			}
		}

		start := time.Now()
		outcome := node(ctx, e.deps, state)
		duration := time.Since(start)

		entry := NodeHistoryEntry{Name: state.CurrentNode, StartTime: start, EndTime: time.Now()}
		switch outcome.Kind {
		case OutcomeContinue:
			if err := checkRouting(state.CurrentNode, outcome.Next); err != nil {
				entry.Status = "error"
				entry.Error = err.Error()
				state.AppendNodeHistory(entry)
				telemetry.NodeDuration.WithLabelValues(string(state.CurrentNode), "routing_error").Observe(duration.Seconds())
				return err
			}
			entry.Status = "ok"
			state.AppendNodeHistory(entry)
			telemetry.NodeDuration.WithLabelValues(string(state.CurrentNode), "continue").Observe(duration.Seconds())
			state.CurrentNode = outcome.Next

			if err := e.checkpoints.Save(ctx, state); err != nil {
				return fmt.Errorf("orchestrator: checkpointing after %q: %w", entry.Name, err)
			}
			continue

		case OutcomeSuspend:
			entry.Status = "suspended"
			entry.Error = outcome.Reason
			state.AppendNodeHistory(entry)
			telemetry.NodeDuration.WithLabelValues(string(state.CurrentNode), "suspend").Observe(duration.Seconds())
			// RequestApproval already checkpointed and published inside the
			// node; nothing further to persist here.
			return nil

		case OutcomeTerminal:
			entry.Status = "ok"
			if state.Error != "" {
				entry.Status = "error"
				entry.Error = state.Error
			}
			state.AppendNodeHistory(entry)
			telemetry.NodeDuration.WithLabelValues(string(state.CurrentNode), "terminal").Observe(duration.Seconds())

			terminalState := StateFinished
			if state.Error != "" {
				terminalState = StateError
			}
			if state.CurrentNode == NodeError {
				terminalState = StateError
			}

			if err := e.checkpoints.Save(ctx, state); err != nil {
				return fmt.Errorf("orchestrator: checkpointing terminal state: %w", err)
			}
			if err := e.publish(ctx, state, terminalState, map[string]any{"error": state.ErrorPayload}); err != nil {
				e.logger.Warn("publishing terminal event", "query_id", state.QueryID, "error", err)
			}
			telemetry.QueriesTotal.WithLabelValues(string(state.DatabaseType), string(terminalState)).Inc()
			return nil

		default:
			return fmt.Errorf("orchestrator: node %q returned unknown outcome kind %q", state.CurrentNode, outcome.Kind)
		}
	}
}

func (e *Engine) publish(ctx context.Context, state *QueryState, lifecycleState LifecycleState, metadata map[string]any) error {
	if e.events == nil {
		return nil
	}
	return e.events.PublishLifecycle(ctx, state.QueryID, lifecycleState, state.TraceID, metadata)
}
