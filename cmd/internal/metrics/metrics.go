// Package metrics exposes session and flow outcomes as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authgate"

// Metrics implements session.Recorder and flows.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	validations      *prometheus.CounterVec
	validateDuration prometheus.Histogram
	sessionsStarted  prometheus.Counter
	sessionsEnded    prometheus.Counter
	flowResults      *prometheus.CounterVec
}

// New registers the authgate collectors on a fresh registry.
// withRuntime adds the Go runtime and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		reg: reg,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_validations_total",
			Help:      "Credential validations by result.",
		}, []string{"result"}),
		validateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_validate_duration_seconds",
			Help:      "Time spent validating a credential, including the store read.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions started (each one supersedes any previous session of the account).",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Explicit session ends (logout).",
		}),
		flowResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_results_total",
			Help:      "Account flow outcomes by flow and result.",
		}, []string{"flow", "result"}),
	}

	reg.MustRegister(m.validations, m.validateDuration, m.sessionsStarted, m.sessionsEnded, m.flowResults)
	return m
}

// SessionStarted counts a credential made active by register or login.
func (m *Metrics) SessionStarted() { m.sessionsStarted.Inc() }

// SessionEnded counts a session closed by logout.
func (m *Metrics) SessionEnded() { m.sessionsEnded.Inc() }

// Validated records one validation outcome.
func (m *Metrics) Validated(result string, elapsed time.Duration) {
	m.validations.WithLabelValues(result).Inc()
	m.validateDuration.Observe(elapsed.Seconds())
}

// FlowResult records one flow outcome.
func (m *Metrics) FlowResult(flow, result string) {
	m.flowResults.WithLabelValues(flow, result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
