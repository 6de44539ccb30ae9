// Package httpapi hosts the HTTP handlers for Amila's core surface: query
// submission/approval/streaming, schema introspection, and webhook
// subscription management (spec.md §6.1).
package httpapi

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/amila/pkg/checkpoint"
	"github.com/wisbric/amila/pkg/dbrouter"
	"github.com/wisbric/amila/pkg/hitl"
	"github.com/wisbric/amila/pkg/lifecycle"
	"github.com/wisbric/amila/pkg/orchestrator"
	"github.com/wisbric/amila/pkg/resilience"
	"github.com/wisbric/amila/pkg/webhook"
)

// Handler wires every collaborator a query/schema/webhook request needs.
// Constructed once in internal/app and mounted directly onto the
// authenticated router — unlike the teacher's per-domain Mount("/prefix",
// handler.Routes()) pattern, spec.md's paths don't share one prefix, so
// Register attaches routes directly to the router it's given.
type Handler struct {
	logger      *slog.Logger
	engine      *orchestrator.Engine
	checkpoints *checkpoint.Store
	gate        *hitl.Gate
	bus         *lifecycle.Bus
	dispatcher  *webhook.Dispatcher
	webhooks    *webhook.Store
	deliverer   *webhook.Deliverer
	router      *dbrouter.Router
	breakers    *resilience.Manager
}

// New creates a Handler from its collaborators.
func New(
	logger *slog.Logger,
	engine *orchestrator.Engine,
	checkpoints *checkpoint.Store,
	gate *hitl.Gate,
	bus *lifecycle.Bus,
	dispatcher *webhook.Dispatcher,
	webhooks *webhook.Store,
	deliverer *webhook.Deliverer,
	router *dbrouter.Router,
	breakers *resilience.Manager,
) *Handler {
	return &Handler{
		logger:      logger,
		engine:      engine,
		checkpoints: checkpoints,
		gate:        gate,
		bus:         bus,
		dispatcher:  dispatcher,
		webhooks:    webhooks,
		deliverer:   deliverer,
		router:      router,
		breakers:    breakers,
	}
}

// Register mounts every route from spec.md §6.1 onto r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/queries/process", h.handleProcess)
	r.Post("/queries/submit", h.handleSubmit)
	r.Post("/queries/clarify", h.handleClarify)
	r.Post("/queries/{id}/approve", h.handleApprove)
	r.Get("/queries/{id}/stream", h.handleStream)

	r.Get("/schema", h.handleSchema)

	r.Post("/webhooks", h.handleCreateWebhook)
	r.Put("/webhooks/{id}", h.handleUpdateWebhook)
	r.Delete("/webhooks/{id}", h.handleDeleteWebhook)
	r.Post("/webhooks/{id}/test", h.handleTestWebhook)
}
