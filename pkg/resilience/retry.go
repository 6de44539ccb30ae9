package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Class classifies an error for retry purposes, per spec.md §4.3 /
// §7's taxonomy: connection/timeout/transient-SQL codes are recoverable.
type Class string

const (
	Recoverable    Class = "recoverable"
	NonRecoverable Class = "non_recoverable"
)

var recoverableSubstrings = []string{
	"timeout", "deadline exceeded", "connection refused", "connection reset",
	"broken pipe", "i/o timeout", "too many connections", "context deadline exceeded",
	"tns:", "ora-12170", "ora-03113", "ora-03135", "ora-12541", "ora-01013",
}

// Classify inspects err's message for known transient markers. A backend
// adapter that can make a more precise determination (dbrouter's Oracle
// ORA- code table, for instance) should be preferred when available;
// Classify is the generic fallback used by the retryable executor.
func Classify(err error) Class {
	if err == nil {
		return NonRecoverable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return Recoverable
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range recoverableSubstrings {
		if strings.Contains(msg, sub) {
			return Recoverable
		}
	}
	return NonRecoverable
}

const (
	retryBaseDelay = time.Second
	retryCapDelay  = 60 * time.Second
)

// WithRetry runs fn up to maxAttempts times with full-jitter exponential
// backoff (base 1s, cap 60s per spec.md §4.3), stopping early on a
// non-recoverable error or context cancellation. Neither the orchestrator
// engine nor any node calls it; a failed generate_sql or execute is not
// retried, it routes to repair, fallback or error instead.
func WithRetry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if Classify(lastErr) == NonRecoverable {
			return lastErr
		}
	}
	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	base := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if base > retryCapDelay {
		base = retryCapDelay
	}
	return time.Duration(rand.Int63n(int64(base) + 1))
}
