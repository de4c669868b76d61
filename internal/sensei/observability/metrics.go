package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Sensei collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	memoryCalls     *prometheus.CounterVec
	memoryDuration  *prometheus.HistogramVec
	actions         *prometheus.CounterVec
	sessions        prometheus.Gauge
}

// NewMetrics registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensei_gateway_calls_total",
			Help: "Language model completions by provider and outcome.",
		}, []string{"provider", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensei_gateway_call_duration_seconds",
			Help:    "Language model completion latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"provider"}),
		memoryCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensei_memory_calls_total",
			Help: "Memory store calls by operation and result code.",
		}, []string{"op", "code"}),
		memoryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensei_memory_call_duration_seconds",
			Help:    "Memory store call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensei_actions_total",
			Help: "Chat actions by name and outcome.",
		}, []string{"action", "outcome"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensei_active_sessions",
			Help: "Sessions currently held in memory.",
		}),
	}
	m.registry.MustRegister(
		m.gatewayCalls, m.gatewayDuration,
		m.memoryCalls, m.memoryDuration,
		m.actions, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveGateway implements llm.Recorder.
func (m *Metrics) ObserveGateway(provider, outcome string, elapsed time.Duration) {
	m.gatewayCalls.WithLabelValues(provider, outcome).Inc()
	m.gatewayDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveMemory implements memory.Recorder.
func (m *Metrics) ObserveMemory(op, code string, elapsed time.Duration) {
	m.memoryCalls.WithLabelValues(op, code).Inc()
	m.memoryDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveAction counts one handled chat action.
func (m *Metrics) ObserveAction(action, outcome string) {
	m.actions.WithLabelValues(action, outcome).Inc()
}

// SetActiveSessions records the registry size.
func (m *Metrics) SetActiveSessions(n int) {
	m.sessions.Set(float64(n))
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
