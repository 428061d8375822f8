package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InstructionMetrics records ledger instruction activity for the RPC surface.
type InstructionMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	instructionOnce     sync.Once
	instructionRegistry *InstructionMetrics
)

// Instructions returns the lazily-initialised instruction metrics registry.
func Instructions() *InstructionMetrics {
	instructionOnce.Do(func() {
		instructionRegistry = &InstructionMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tubbly",
				Subsystem: "ledger",
				Name:      "requests_total",
				Help:      "Total ledger instructions segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tubbly",
				Subsystem: "ledger",
				Name:      "errors_total",
				Help:      "Total ledger instruction failures segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tubbly",
				Subsystem: "ledger",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for ledger instruction handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			instructionRegistry.requests,
			instructionRegistry.errors,
			instructionRegistry.latency,
		)
	})
	return instructionRegistry
}

// ObserveSuccess records a successful instruction and its latency.
func (m *InstructionMetrics) ObserveSuccess(method string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, "ok").Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveError records a failed instruction with its RPC error code.
func (m *InstructionMetrics) ObserveError(method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, "error").Inc()
	m.errors.WithLabelValues(method, code).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}
