// Package telemetry holds the Prometheus metrics for the upload and analysis
// flow. All recording methods are safe on a nil *Metrics so packages can be
// used without a registry (tests, CLI one-shots).
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patternflow"

// Metrics bundles the collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	uploadAttempts   *prometheus.CounterVec
	uploadOutcomes   *prometheus.CounterVec
	resolvedIDs      prometheus.Histogram
	analysisOutcomes *prometheus.CounterVec
	normalizeModes   *prometheus.CounterVec
	schemaWarnings   prometheus.Counter
	agentLatency     *prometheus.HistogramVec
	streamEvents     *prometheus.CounterVec
	transitions      *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry that also exposes
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		registry: reg,
		uploadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_attempts_total",
			Help:      "Upstream upload requests by multipart field name and response status.",
		}, []string{"field", "status"}),
		uploadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_outcomes_total",
			Help:      "Per-file upload outcomes after the field-name retry.",
		}, []string{"outcome"}),
		resolvedIDs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolved_asset_ids",
			Help:      "Asset identifiers resolved from one upload response.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25},
		}),
		analysisOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_outcomes_total",
			Help:      "Agent analysis outcomes.",
		}, []string{"outcome"}),
		normalizeModes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_results_total",
			Help:      "Agent results by normalization path (structured, parsed_text, degraded).",
		}, []string{"mode"}),
		schemaWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_schema_warnings_total",
			Help:      "Schema violations found in structured agent results.",
		}),
		agentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_invoke_seconds",
			Help:      "Latency of agent invocations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"status"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_stream_events_total",
			Help:      "Messages received on agent event streams.",
		}, []string{"type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinator_transitions_total",
			Help:      "Coordinator state transitions by target state.",
		}, []string{"state"}),
	}
	reg.MustRegister(
		m.uploadAttempts,
		m.uploadOutcomes,
		m.resolvedIDs,
		m.analysisOutcomes,
		m.normalizeModes,
		m.schemaWarnings,
		m.agentLatency,
		m.streamEvents,
		m.transitions,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) UploadAttempt(field string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.uploadAttempts.WithLabelValues(field, label).Inc()
}

func (m *Metrics) UploadOutcome(outcome string, resolved int) {
	if m == nil {
		return
	}
	m.uploadOutcomes.WithLabelValues(outcome).Inc()
	m.resolvedIDs.Observe(float64(resolved))
}

func (m *Metrics) AnalysisOutcome(outcome string) {
	if m == nil {
		return
	}
	m.analysisOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NormalizeMode(mode string) {
	if m == nil {
		return
	}
	m.normalizeModes.WithLabelValues(mode).Inc()
}

func (m *Metrics) SchemaWarnings(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.schemaWarnings.Add(float64(n))
}

func (m *Metrics) AgentLatency(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.agentLatency.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) StreamEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.streamEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}
