package httpapi

import (
	"context"
	"net/http"

	"github.com/wisbric/amila/internal/httpserver"
	"github.com/wisbric/amila/pkg/dbrouter"
	"github.com/wisbric/amila/pkg/orchestrator"
)

// handleSchema implements GET /schema?database_type=…&connection=…&query=…,
// routed through the named backend's adapter and the breaker/limiter pair
// the Resilience Layer keeps per resource name (spec.md §4.3/§6.1).
func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	dbType := orchestrator.DatabaseType(r.URL.Query().Get("database_type"))
	if dbType == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "database_type is required")
		return
	}
	connection := r.URL.Query().Get("connection")
	query := r.URL.Query().Get("query")

	adapter, err := h.router.Get(dbType)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	raw, err := h.breakers.Execute(r.Context(), "schema:"+string(dbType), func(ctx context.Context) (any, error) {
		return adapter.GetSchema(ctx, query, connection)
	})
	if err != nil {
		h.logger.Error("fetching schema", "database_type", dbType, "error", err)
		writeInfraError(w, err)
		return
	}

	result := raw.(dbrouter.Result)
	httpserver.Respond(w, http.StatusOK, result)
}
