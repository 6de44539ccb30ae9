// Package orchestrator implements the query orchestration state machine:
// a checkpointed, resumable pipeline that turns a natural-language question
// into validated, executed SQL while streaming progress events.
package orchestrator

import "time"

// DatabaseType is one of the three supported execution backends.
type DatabaseType string

const (
	DatabaseOracle   DatabaseType = "oracle"
	DatabaseDoris    DatabaseType = "doris"
	DatabasePostgres DatabaseType = "postgres"
)

// NodeName identifies a node in the orchestration graph.
type NodeName string

const (
	NodeUnderstand          NodeName = "understand"
	NodeRetrieveContext     NodeName = "retrieve_context"
	NodeDecompose           NodeName = "decompose"
	NodeGenerateHypothesis  NodeName = "generate_hypothesis"
	NodeGenerateSQL         NodeName = "generate_sql"
	NodeValidate            NodeName = "validate"
	NodeProbeSQL            NodeName = "probe_sql"
	NodeAwaitApproval       NodeName = "await_approval"
	NodeExecute             NodeName = "execute"
	NodeValidateResults     NodeName = "validate_results"
	NodePivotStrategy       NodeName = "pivot_strategy"
	NodeRepairSQL           NodeName = "repair_sql"
	NodeGenerateFallbackSQL NodeName = "generate_fallback_sql"
	NodeFormatResults       NodeName = "format_results"
	NodeError               NodeName = "error"
)

// LifecycleState mirrors spec.md §3's LifecycleEvent.state enumeration.
type LifecycleState string

const (
	StateReceived         LifecycleState = "received"
	StatePlanning         LifecycleState = "planning"
	StateGeneratingSQL     LifecycleState = "generating_sql"
	StateValidating       LifecycleState = "validating"
	StatePendingApproval  LifecycleState = "pending_approval"
	StateApproved         LifecycleState = "approved"
	StateExecuting        LifecycleState = "executing"
	StateValidatingResults LifecycleState = "validating_results"
	StateFinished         LifecycleState = "finished"
	StateError            LifecycleState = "error"
	StateRejected         LifecycleState = "rejected"
)

// IsTerminal reports whether s is one of the three terminal lifecycle states.
func (s LifecycleState) IsTerminal() bool {
	return s == StateFinished || s == StateError || s == StateRejected
}

// NextAction records what the engine should do after the current node,
// distinct from the node's routing decision so a suspended query can be
// resumed without re-deriving intent from state alone.
type NextAction string

const (
	ActionContinue NextAction = "continue"
	ActionSuspend  NextAction = "suspend"
	ActionTerminal NextAction = "terminal"
)

// SchemaContext holds retrieved schema metadata and semantic examples used
// to ground SQL generation.
type SchemaContext struct {
	SchemaMetadata    map[string]any `json:"schema_metadata,omitempty"`
	SemanticHits      []string       `json:"semantic_hits,omitempty"`
	GraphitiAvailable bool           `json:"graphiti_available"`
}

// ValidationResult is the outcome of pre-execution SQL validation.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	RiskLevel        string   `json:"risk_level"`
	RequiresApproval bool     `json:"requires_approval"`
	Warnings         []string `json:"warnings,omitempty"`
}

// ExecutionResult is the canonical shape returned by the Database Router.
type ExecutionResult struct {
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	RowCount         int      `json:"row_count"`
	ExecutionTimeMS int64    `json:"execution_time_ms"`
	Truncated       bool     `json:"truncated,omitempty"`
}

// ResultAnalysis is produced by validate_results.
type ResultAnalysis struct {
	QualityScore float64  `json:"quality_score"`
	Issues       []string `json:"issues,omitempty"`
}

// ErrorPayload is the structured error attached to a query on failure.
type ErrorPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NodeHistoryEntry records one node execution for observability. QueryState
// keeps at most MaxNodeHistory entries, oldest dropped first.
type NodeHistoryEntry struct {
	Name          NodeName  `json:"name"`
	Status        string    `json:"status"` // "ok", "error", "suspended"
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ThinkingSteps []string  `json:"thinking_steps,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ClarificationEntry records one round of the clarification dialogue.
// QueryState keeps at most MaxClarificationHistory entries.
type ClarificationEntry struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	MaxNodeHistory         = 50
	MaxClarificationHistory = 10
)

// QueryState is the orchestrator's working memory for one query, persisted
// to the Checkpoint Store at every node boundary.
type QueryState struct {
	// Identity
	QueryID   string `json:"query_id"`
	ThreadID  string `json:"thread_id"`
	UserID    string `json:"user_id,omitempty"`
	UserRole  string `json:"user_role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`

	// Input
	UserQuery      string       `json:"user_query"`
	DatabaseType   DatabaseType `json:"database_type"`
	ConnectionName string       `json:"connection_name,omitempty"`

	// Derived
	Intent        string         `json:"intent,omitempty"`
	Hypothesis    string         `json:"hypothesis,omitempty"`
	Context       SchemaContext  `json:"context"`
	SQLQuery      string         `json:"sql_query,omitempty"`
	SQLConfidence int            `json:"sql_confidence"`

	// Execution
	ValidationResult   *ValidationResult `json:"validation_result,omitempty"`
	ExecutionResult    *ExecutionResult  `json:"execution_result,omitempty"`
	ResultAnalysis     *ResultAnalysis   `json:"result_analysis,omitempty"`
	CostEstimate       float64           `json:"cost_estimate,omitempty"`
	ExecutionPlan      string            `json:"execution_plan,omitempty"`
	VisualizationHints map[string]any    `json:"visualization_hints,omitempty"`

	// Control
	CurrentNode     NodeName      `json:"current_node,omitempty"`
	NeedsApproval   bool          `json:"needs_approval"`
	Approved        bool          `json:"approved"`
	NextAction      NextAction    `json:"next_action"`
	Error           string        `json:"error,omitempty"`
	ErrorStage      string        `json:"error_stage,omitempty"`
	ErrorPayload    *ErrorPayload `json:"error_payload,omitempty"`
	RepairAttempts  int           `json:"repair_attempts"`
	FallbackAttempts int          `json:"fallback_attempts"`
	PivotAttempts   int           `json:"pivot_attempts"`

	// Observability
	NodeHistory         []NodeHistoryEntry   `json:"node_history,omitempty"`
	ClarificationHistory []ClarificationEntry `json:"clarification_history,omitempty"`

	// Multi-part decomposition
	QueryDAG []string `json:"query_dag,omitempty"`

	// Supplemented (SPEC_FULL §5): free-form routing labels and bookkeeping.
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendNodeHistory records a node execution, dropping the oldest entry
// once the bound is reached.
func (s *QueryState) AppendNodeHistory(entry NodeHistoryEntry) {
	s.NodeHistory = append(s.NodeHistory, entry)
	if len(s.NodeHistory) > MaxNodeHistory {
		s.NodeHistory = s.NodeHistory[len(s.NodeHistory)-MaxNodeHistory:]
	}
}

// AppendClarification records one clarification round, dropping the oldest
// entry once the bound is reached.
func (s *QueryState) AppendClarification(entry ClarificationEntry) {
	s.ClarificationHistory = append(s.ClarificationHistory, entry)
	if len(s.ClarificationHistory) > MaxClarificationHistory {
		s.ClarificationHistory = s.ClarificationHistory[len(s.ClarificationHistory)-MaxClarificationHistory:]
	}
}

// TotalLoopAttempts is the sum gated by the combined cap in spec.md §3's
// invariant: repair_attempts + fallback_attempts + pivot_attempts ≤ 6.
func (s *QueryState) TotalLoopAttempts() int {
	return s.RepairAttempts + s.FallbackAttempts + s.PivotAttempts
}
