package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManager_ExecuteSuccess(t *testing.T) {
	m := NewManager(DefaultConfig())

	result, err := m.Execute(context.Background(), "test-resource", func(_ context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
}

func TestManager_TripsOpenAfterThreshold(t *testing.T) {
	cfg := Config{FailureThreshold: 2, RecoveryTimeout: time.Hour, SuccessThreshold: 1}
	m := NewManager(cfg)

	failing := func(_ context.Context) (any, error) {
		return nil, errors.New("boom")
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Execute(context.Background(), "flaky", failing); err == nil {
			t.Fatal("expected error from failing call")
		}
	}

	_, err := m.Execute(context.Background(), "flaky", failing)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after tripping, got %v", err)
	}

	if m.State("flaky") != "open" {
		t.Errorf("State() = %q, want open", m.State("flaky"))
	}
}

func TestManager_StateDefaultsClosed(t *testing.T) {
	m := NewManager(DefaultConfig())
	if m.State("never-called") != "closed" {
		t.Errorf("State() for unknown resource = %q, want closed", m.State("never-called"))
	}
}
