package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/wisbric/amila/internal/httpserver"
	"github.com/wisbric/amila/pkg/resilience"
)

// writeInfraError maps an infrastructure-layer failure (not a
// QueryState-carried orchestration error) to the status codes spec.md §7
// reserves for them: 503 for an open circuit, 504 for a deadline, 502 for
// anything else the dependency returned.
func writeInfraError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		httpserver.RespondError(w, http.StatusServiceUnavailable, "circuit_open", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpserver.RespondError(w, http.StatusGatewayTimeout, "deadline_exceeded", err.Error())
	default:
		httpserver.RespondError(w, http.StatusBadGateway, "upstream_error", err.Error())
	}
}
