// Package resilience implements the Resilience Layer: circuit breakers,
// rate limiting, retryable execution, and an in-process fallback cache,
// shared across every database backend and the LLM adapter.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wisbric/amila/internal/telemetry"
)

// Config holds the circuit breaker defaults from spec.md §9.
type Config struct {
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
	SuccessThreshold uint32
}

// DefaultConfig returns spec.md §4.3's defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// ErrCircuitOpen is returned when Manager.Execute is rejected by an open
// breaker, mapped to the circuit_open taxonomy kind / 503 status.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// Manager owns one gobreaker.CircuitBreaker and one rate.Limiter per named
// resource, created lazily under a mutex — spec.md §5: "circuit breakers:
// process-wide, mutable under a short lock covering counter increments and
// state transitions."
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*gobreaker.CircuitBreaker[any]
	limiters map[string]*rateLimiter
}

// NewManager creates a Manager with the given breaker defaults.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		limiters: make(map[string]*rateLimiter),
	}
}

func breakerStateGauge(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	telemetry.CircuitBreakerState.WithLabelValues(name).Set(v)
}

func (m *Manager) breakerFor(name string) *gobreaker.CircuitBreaker[any] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: m.cfg.SuccessThreshold,
		Interval:    0,
		Timeout:     m.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.cfg.FailureThreshold
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			breakerStateGauge(name, to)
		},
	}
	b := gobreaker.NewCircuitBreaker[any](settings)
	m.breakers[name] = b
	breakerStateGauge(name, gobreaker.StateClosed)
	return b
}

// Execute runs fn gated by the named resource's rate limiter then circuit
// breaker. A rate-limited call is not counted as a breaker failure — it
// never reaches the breaker at all.
func (m *Manager) Execute(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := m.limiterFor(name).Wait(ctx); err != nil {
		return nil, fmt.Errorf("resilience: rate limit wait for %q: %w", name, err)
	}

	breaker := m.breakerFor(name)
	result, err := breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State reports the current breaker state for a resource, for health
// checks and metrics scraping. Returns "closed" for a resource that has
// never been called.
func (m *Manager) State(name string) string {
	m.mu.Lock()
	b, ok := m.breakers[name]
	m.mu.Unlock()
	if !ok {
		return "closed"
	}
	switch b.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
