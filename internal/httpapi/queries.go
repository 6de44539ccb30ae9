package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/amila/internal/httpmw"
	"github.com/wisbric/amila/internal/httpserver"
	"github.com/wisbric/amila/pkg/hitl"
	"github.com/wisbric/amila/pkg/lifecycle"
	"github.com/wisbric/amila/pkg/orchestrator"
)

type processRequest struct {
	// Query is intentionally not validate:"required" — an empty or
	// blocked question is a 200 response with a validation_error body
	// (spec.md §6.1/§8), not an HTTP-layer 422. NodeUnderstandFn enforces
	// it as a routing decision instead.
	Query          string `json:"query"`
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id"`
	DatabaseType   string `json:"database_type" validate:"required,oneof=oracle doris postgres"`
	ConnectionName string `json:"connection_name"`
	ThreadID       string `json:"thread_id"`
}

// identityOrBody prefers the body's user_id (set by trusted internal
// callers) and falls back to the authenticated bearer identity.
func identityOrBody(r *http.Request, bodyUserID string) (userID, role string) {
	id, _ := httpmw.IdentityFromContext(r.Context())
	userID = bodyUserID
	if userID == "" {
		userID = id.UserID
	}
	return userID, id.UserRole
}

// handleProcess implements POST /queries/process: runs a natural-language
// question through the full understand→generate→validate→execute pipeline.
// Per spec.md §6.1 the response is always 200; failures are encoded in the
// body via status/error, not the HTTP status line.
func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID, role := identityOrBody(r, req.UserID)
	traceID := uuid.NewString()

	state, err := h.engine.Submit(r.Context(), req.Query, orchestrator.DatabaseType(req.DatabaseType), req.ConnectionName, userID, role, traceID)
	if err != nil {
		h.logger.Error("running query", "error", err, "trace_id", traceID)
		writeInfraError(w, err)
		return
	}

	dispatchWebhooks(h.dispatcher, h.logger, state)
	httpserver.Respond(w, http.StatusOK, buildResponse(state))
}

type submitRequest struct {
	SQL            string `json:"sql" validate:"required"`
	UserID         string `json:"user_id"`
	DatabaseType   string `json:"database_type" validate:"required,oneof=oracle doris postgres"`
	ConnectionName string `json:"connection_name"`
}

// handleSubmit implements POST /queries/submit: direct SQL execution,
// bypassing natural-language understanding but still routed through
// validation, probing, and approval gating.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID, role := identityOrBody(r, req.UserID)
	traceID := uuid.NewString()

	state, err := h.engine.SubmitSQL(r.Context(), req.SQL, orchestrator.DatabaseType(req.DatabaseType), req.ConnectionName, userID, role, traceID)
	if err != nil {
		h.logger.Error("submitting direct SQL", "error", err, "trace_id", traceID)
		writeInfraError(w, err)
		return
	}

	dispatchWebhooks(h.dispatcher, h.logger, state)
	httpserver.Respond(w, http.StatusOK, buildResponse(state))
}

type clarifyRequest struct {
	QueryID       string `json:"query_id" validate:"required"`
	Clarification string `json:"clarification" validate:"required"`
	OriginalQuery string `json:"original_query"`
}

// handleClarify implements POST /queries/clarify: resumes a paused query
// with user-supplied clarification, appended to both the clarification
// history and the working question so the next generate_sql call sees it.
// An empty clarification is rejected with 400 per spec.md §6.1, ahead of
// the general body validator so the message names the field precisely.
func (h *Handler) handleClarify(w http.ResponseWriter, r *http.Request) {
	var req clarifyRequest
	if err := httpserver.Decode(r, &req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Clarification == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "clarification must not be empty")
		return
	}
	if errs := httpserver.Validate(&req); len(errs) > 0 {
		httpserver.RespondValidationError(w, errs)
		return
	}

	state, err := h.checkpoints.LoadByQueryID(r.Context(), req.QueryID)
	if err != nil {
		h.logger.Error("loading checkpoint for clarify", "error", err, "query_id", req.QueryID)
		writeInfraError(w, err)
		return
	}
	if state == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no query found for that query_id")
		return
	}

	state.AppendClarification(orchestrator.ClarificationEntry{
		Question: state.UserQuery,
		Answer:   req.Clarification,
	})
	state.UserQuery = state.UserQuery + "\nClarification: " + req.Clarification
	state.NextAction = orchestrator.ActionContinue

	if err := h.checkpoints.Save(r.Context(), state); err != nil {
		h.logger.Error("saving clarified checkpoint", "error", err, "query_id", req.QueryID)
		writeInfraError(w, err)
		return
	}

	resumed, err := h.engine.Resume(r.Context(), state.ThreadID)
	if err != nil {
		h.logger.Error("resuming after clarification", "error", err, "query_id", req.QueryID)
		writeInfraError(w, err)
		return
	}

	dispatchWebhooks(h.dispatcher, h.logger, resumed)
	httpserver.Respond(w, http.StatusOK, buildResponse(resumed))
}

type approveRequest struct {
	Approved  bool   `json:"approved"`
	EditedSQL string `json:"edited_sql"`
	Reason    string `json:"reason"`
}

// handleApprove implements POST /queries/{id}/approve: records the HITL
// decision and, when approved, immediately resumes the engine rather than
// waiting for a scheduled tick — spec.md §6.1's synchronous response
// contract means the caller expects the post-resume state back.
func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "id")

	var req approveRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	checkpoint, err := h.checkpoints.LoadByQueryID(r.Context(), queryID)
	if err != nil {
		h.logger.Error("loading checkpoint for approve", "error", err, "query_id", queryID)
		writeInfraError(w, err)
		return
	}
	if checkpoint == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no query found for that query_id")
		return
	}

	if !req.Approved {
		state, err := h.gate.Reject(r.Context(), checkpoint.ThreadID, req.Reason)
		if err != nil {
			h.logger.Error("rejecting query", "error", err, "query_id", queryID)
			writeInfraError(w, err)
			return
		}
		dispatchWebhooks(h.dispatcher, h.logger, state)
		httpserver.Respond(w, http.StatusOK, buildResponse(state))
		return
	}

	decision := hitl.Decision{Approved: true, EditedSQL: req.EditedSQL, Reason: req.Reason}
	if _, err := h.gate.Approve(r.Context(), queryID, checkpoint.ThreadID, decision); err != nil {
		h.logger.Error("approving query", "error", err, "query_id", queryID)
		writeInfraError(w, err)
		return
	}

	state, err := h.engine.Resume(r.Context(), checkpoint.ThreadID)
	if err != nil {
		h.logger.Error("resuming after approval", "error", err, "query_id", queryID)
		writeInfraError(w, err)
		return
	}

	dispatchWebhooks(h.dispatcher, h.logger, state)
	httpserver.Respond(w, http.StatusOK, buildResponse(state))
}

// handleStream implements GET /queries/{id}/stream?token=…, delegating to
// the Lifecycle Bus's SSE transport. Stream tokens aren't minted anywhere
// yet, so VerifyToken is left nil (open) rather than rejecting every
// connection — tightening this is a follow-up once token issuance exists.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	stream := &lifecycle.StreamHandler{Bus: h.bus, Logger: h.logger}
	stream.ServeHTTP(w, r)
}
