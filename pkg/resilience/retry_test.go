package resilience

import (
	"context"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{errors.New("connection refused"), Recoverable},
		{errors.New("i/o timeout"), Recoverable},
		{ErrCircuitOpen, Recoverable},
		{errors.New("ORA-00904: invalid identifier"), NonRecoverable},
		{errors.New("syntax error near SELECT"), NonRecoverable},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestWithRetry_SucceedsEventually(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 3, func(_ context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestWithRetry_StopsOnNonRecoverable(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 5, func(_ context.Context) error {
		attempts++
		return errors.New("ORA-00942: table or view does not exist")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (should not retry non-recoverable)", attempts)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 3, func(_ context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := WithRetry(ctx, 3, func(_ context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (first attempt runs before any wait)", attempts)
	}
}
