package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/amila/internal/httpmw"
	"github.com/wisbric/amila/internal/httpserver"
	"github.com/wisbric/amila/pkg/webhook"
)

type webhookCreateRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1"`
}

// handleCreateWebhook implements POST /webhooks.
func (h *Handler) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookCreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	identity, _ := httpmw.IdentityFromContext(r.Context())
	sub, err := h.webhooks.Create(r.Context(), webhook.Subscription{
		UserID: identity.UserID,
		URL:    req.URL,
		Events: req.Events,
		Active: true,
		Secret: uuid.NewString() + uuid.NewString(),
	})
	if err != nil {
		h.logger.Error("creating webhook subscription", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create webhook subscription")
		return
	}

	httpserver.Respond(w, http.StatusCreated, sub)
}

type webhookUpdateRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1"`
	Active bool     `json:"active"`
}

// handleUpdateWebhook implements PUT /webhooks/{id}.
func (h *Handler) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req webhookUpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sub, err := h.webhooks.Update(r.Context(), id, req.URL, req.Events, req.Active)
	if err != nil {
		h.logger.Error("updating webhook subscription", "webhook_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update webhook subscription")
		return
	}
	if sub == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no webhook subscription with that id")
		return
	}

	httpserver.Respond(w, http.StatusOK, sub)
}

// handleDeleteWebhook implements DELETE /webhooks/{id}.
func (h *Handler) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.webhooks.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting webhook subscription", "webhook_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete webhook subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTestWebhook implements POST /webhooks/{id}/test: delivers a
// synthetic "test" event directly to the subscription's URL, bypassing the
// queue so the caller gets the delivery outcome inline rather than having
// to poll for it.
func (h *Handler) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.webhooks.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("loading webhook subscription", "webhook_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load webhook subscription")
		return
	}
	if sub == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no webhook subscription with that id")
		return
	}

	payload := []byte(`{"event":"test","message":"this is a test delivery from Amila"}`)
	job := webhook.Job{SubscriptionID: sub.ID, Event: "test", Payload: payload, EnqueuedAt: time.Now()}

	if err := h.deliverer.Deliver(r.Context(), job, *sub); err != nil {
		httpserver.RespondError(w, http.StatusBadGateway, "delivery_failed", err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "delivered"})
}
