package lifecycle

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const keepAliveInterval = 30 * time.Second

// StreamHandler implements GET /queries/{id}/stream?token=… from spec.md
// §4.2/§6.2: SSE framing, a keep-alive comment every ≤30s, connection close
// on any terminal event. SSE clients cannot attach headers, so
// authentication is the short-lived token in the query string rather than
// the bearer-token middleware used elsewhere.
type StreamHandler struct {
	Bus         *Bus
	Logger      *slog.Logger
	VerifyToken func(r *http.Request, queryID string) bool
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "id")
	if queryID == "" {
		http.Error(w, "missing query id", http.StatusBadRequest)
		return
	}

	if h.VerifyToken != nil && !h.VerifyToken(r, queryID) {
		http.Error(w, "invalid or missing stream token", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	sub, err := h.Bus.Subscribe(ctx, queryID)
	if err != nil {
		h.Logger.Error("subscribing to lifecycle bus", "query_id", queryID, "error", err)
	}
	defer sub.Close()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected. Per spec.md §4.2, the producer continues
			// regardless — we simply stop reading from this channel.
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				h.Logger.Warn("writing sse event", "query_id", queryID, "error", err)
				return
			}
			flusher.Flush()
			if event.State.IsTerminal() {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// ConstantTimeTokenVerifier builds a VerifyToken func comparing the query
// string's token against a per-query token supplied by tokenFor.
func ConstantTimeTokenVerifier(tokenFor func(queryID string) string) func(r *http.Request, queryID string) bool {
	return func(r *http.Request, queryID string) bool {
		want := tokenFor(queryID)
		if want == "" {
			return false
		}
		got := r.URL.Query().Get("token")
		return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
	}
}
