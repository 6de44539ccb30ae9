package webhook

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/wisbric/amila/pkg/orchestrator"
)

func TestDispatcher_RejectsNonTerminalState(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	d := NewDispatcher(nil, nil, logger)

	err := d.Dispatch(context.Background(), "user-1", "q-1", orchestrator.StateExecuting, nil)
	if err == nil {
		t.Fatal("expected an error dispatching a non-terminal lifecycle state")
	}
}
