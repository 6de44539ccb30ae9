package orchestrator

// ErrorKind is the taxonomy from spec.md §7 — a classification, not a Go
// error type, attached to QueryState so HTTP handlers and webhook payloads
// can report a stable category independent of the underlying error text.
type ErrorKind string

const (
	ErrValidation        ErrorKind = "validation_error"
	ErrLLM               ErrorKind = "llm_error"
	ErrDBRecoverable     ErrorKind = "db_error.recoverable"
	ErrDBNonRecoverable  ErrorKind = "db_error.non_recoverable"
	ErrCircuitOpen       ErrorKind = "circuit_open"
	ErrApprovalRejected  ErrorKind = "approval_rejected"
	ErrInternal          ErrorKind = "internal_error"
)

// fail records a terminal error on state per spec.md §7's propagation
// policy: nodes never raise across boundaries, they populate error fields
// and return a routing decision.
func fail(s *QueryState, kind ErrorKind, stage, message string) Outcome {
	s.Error = message
	s.ErrorStage = stage
	s.ErrorPayload = &ErrorPayload{Stage: stage, Message: message, Details: string(kind)}
	return Continue(NodeError)
}
