package orchestrator

import (
	"context"
	"log/slog"

	"github.com/wisbric/amila/pkg/dbrouter"
	"github.com/wisbric/amila/pkg/llmadapter"
	"github.com/wisbric/amila/pkg/resilience"
)

// ApprovalGate is the narrow boundary await_approval suspends through.
// pkg/hitl.Gate implements this; the interface lives here instead so
// orchestrator need not import hitl (which itself depends on orchestrator's
// types).
type ApprovalGate interface {
	RequestApproval(ctx context.Context, state *QueryState) (Outcome, error)
}

// ResultCache is the boundary format_results writes through. pkg/resultstore.Store
// implements this; the interface lives here so orchestrator need not import
// resultstore (which imports orchestrator for ExecutionResult/DatabaseType).
type ResultCache interface {
	Put(ctx context.Context, queryID, sql string, dbType DatabaseType, result ExecutionResult) (string, error)
}

// Deps are the narrow collaborators a node needs. Nodes never reach for a
// concrete client directly — everything crosses one of these interfaces so
// tests can substitute fakes.
type Deps struct {
	LLM      llmadapter.Client
	Router   *dbrouter.Router
	Breakers *resilience.Manager
	Approval ApprovalGate
	Results  ResultCache
	Logger   *slog.Logger
}

// Outcome is the sum type a node returns: exactly one of Continue, Suspend,
// or Terminal is populated. Modeled as a struct with a discriminant rather
// than an interface so the router can switch on Kind without type
// assertions.
type OutcomeKind string

const (
	OutcomeContinue OutcomeKind = "continue"
	OutcomeSuspend  OutcomeKind = "suspend"
	OutcomeTerminal OutcomeKind = "terminal"
)

// Outcome is what a Node returns after mutating QueryState.
type Outcome struct {
	Kind   OutcomeKind
	Next   NodeName // set when Kind == OutcomeContinue
	Reason string   // set when Kind == OutcomeSuspend
}

// Continue routes to the named successor node.
func Continue(next NodeName) Outcome {
	return Outcome{Kind: OutcomeContinue, Next: next}
}

// Suspend pauses the state machine; the engine persists the checkpoint and
// exits the run loop without scheduling further work.
func Suspend(reason string) Outcome {
	return Outcome{Kind: OutcomeSuspend, Reason: reason}
}

// Terminal ends the query. The caller is expected to have already set a
// terminal-compatible NextAction and, for errors, ErrorPayload.
func Terminal() Outcome {
	return Outcome{Kind: OutcomeTerminal}
}

// Node is one step of the orchestration pipeline. It mutates state in
// place and returns the routing decision; it never returns a Go error —
// failures are recorded on QueryState per spec.md §7's propagation policy
// and surfaced as a Terminal outcome routed to the error node.
type Node func(ctx context.Context, deps *Deps, state *QueryState) Outcome
