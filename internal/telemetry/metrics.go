package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all handlers.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "amila",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// NodeDuration tracks orchestrator node execution time.
var NodeDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "amila",
		Subsystem: "orchestrator",
		Name:      "node_duration_seconds",
		Help:      "Orchestrator node execution duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"node", "outcome"},
)

// QueriesTotal counts submitted queries by terminal state.
var QueriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "amila",
		Subsystem: "orchestrator",
		Name:      "queries_total",
		Help:      "Total number of queries processed, by terminal state.",
	},
	[]string{"database_type", "terminal_state"},
)

// CircuitBreakerState reports the current state of each named breaker
// (0=closed, 1=half_open, 2=open).
var CircuitBreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "amila",
		Subsystem: "resilience",
		Name:      "circuit_breaker_state",
		Help:      "Current circuit breaker state per named resource.",
	},
	[]string{"resource"},
)

// WebhookDeliveriesTotal counts webhook delivery attempts by outcome.
var WebhookDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "amila",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Total number of webhook delivery attempts, by outcome.",
	},
	[]string{"event", "outcome"},
)

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared request-duration metric, and any additional collectors passed in.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}

// All returns the domain-specific collectors registered alongside the
// ambient HTTP metric.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		NodeDuration,
		QueriesTotal,
		CircuitBreakerState,
		WebhookDeliveriesTotal,
	}
}
