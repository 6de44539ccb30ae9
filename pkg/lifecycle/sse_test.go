package lifecycle

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/amila/pkg/orchestrator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStreamHandler_ClosesOnTerminalEvent(t *testing.T) {
	bus := newTestBus(t)
	handler := &StreamHandler{Bus: bus, Logger: testLogger()}

	r := chi.NewRouter()
	r.Get("/queries/{id}/stream", handler.ServeHTTP)

	server := httptest.NewServer(r)
	defer server.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = bus.Publish(context.Background(), Event{QueryID: "q1", State: orchestrator.StateReceived, Timestamp: time.Now()})
		_ = bus.Publish(context.Background(), Event{QueryID: "q1", State: orchestrator.StateFinished, Timestamp: time.Now()})
	}()

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(server.URL + "/queries/q1/stream")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	if n == 0 {
		t.Fatal("expected at least one SSE frame before stream closed")
	}
}

func TestConstantTimeTokenVerifier(t *testing.T) {
	verify := ConstantTimeTokenVerifier(func(queryID string) string {
		if queryID == "q1" {
			return "secret-token"
		}
		return ""
	})

	r := httptest.NewRequest(http.MethodGet, "/queries/q1/stream?token=secret-token", nil)
	if !verify(r, "q1") {
		t.Error("expected valid token to verify")
	}

	r2 := httptest.NewRequest(http.MethodGet, "/queries/q1/stream?token=wrong", nil)
	if verify(r2, "q1") {
		t.Error("expected invalid token to fail verification")
	}

	r3 := httptest.NewRequest(http.MethodGet, "/queries/q2/stream?token=secret-token", nil)
	if verify(r3, "q2") {
		t.Error("expected missing per-query token to fail closed")
	}
}
