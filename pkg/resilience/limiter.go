package resilience

import (
	"golang.org/x/time/rate"
)

// defaultLimiterRate is generous enough not to interfere with normal load;
// it exists to smooth bursts before they ever reach the breaker, not to
// impose a product-level rate limit (that's the rate limiter policy
// storage explicit non-goal in spec.md §1).
const (
	defaultLimiterRate  = 50 // requests/sec
	defaultLimiterBurst = 100
)

type rateLimiter struct {
	*rate.Limiter
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{Limiter: rate.NewLimiter(rate.Limit(defaultLimiterRate), defaultLimiterBurst)}
}

func (m *Manager) limiterFor(name string) *rateLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.limiters[name]; ok {
		return l
	}
	l := newRateLimiter()
	m.limiters[name] = l
	return l
}
