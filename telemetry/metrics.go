package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus observability for agents, the registry and the
// standards library. Each instance registers into its own registry so several
// registries can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	AgentsByStatus    *prometheus.GaugeVec
	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec
	HealthChecksTotal *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
	HandlerFailures   *prometheus.CounterVec
	StandardsCache    *prometheus.CounterVec
	ProviderCalls     *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance backed by a fresh registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry registers all compliancekit metrics into reg.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		AgentsByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compliancekit_agents",
			Help: "Registered agents by lifecycle status",
		}, []string{"status"}),
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancekit_analyses_total",
			Help: "Document analyses by agent and outcome",
		}, []string{"agent", "outcome"}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliancekit_analysis_duration_seconds",
			Help:    "Duration of document analyses",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"agent"}),
		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancekit_tokens_total",
			Help: "Model tokens consumed by agent",
		}, []string{"agent"}),
		HealthChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancekit_health_checks_total",
			Help: "Health probes by agent and result",
		}, []string{"agent", "result"}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancekit_registry_events_total",
			Help: "Registry events emitted by type",
		}, []string{"event"}),
		HandlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancekit_event_handler_failures_total",
			Help: "Event handlers that returned an error or panicked",
		}, []string{"event"}),
		StandardsCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancekit_standards_cache_total",
			Help: "Standards cache lookups by result",
		}, []string{"result"}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliancekit_provider_calls_total",
			Help: "Model provider calls by backend, operation and outcome",
		}, []string{"provider", "operation", "outcome"}),
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// SetAgentCounts replaces the per-status gauge values.
func (m *Metrics) SetAgentCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.AgentsByStatus.Reset()
	for status, n := range counts {
		m.AgentsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// ObserveAnalysis records one analysis. Call with time.Now() at the start.
func (m *Metrics) ObserveAnalysis(agentID string, start time.Time, tokens int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.AnalysesTotal.WithLabelValues(agentID, outcome).Inc()
	m.AnalysisDuration.WithLabelValues(agentID).Observe(time.Since(start).Seconds())
	if tokens > 0 {
		m.TokensTotal.WithLabelValues(agentID).Add(float64(tokens))
	}
}

// ObserveHealthCheck records a probe result.
func (m *Metrics) ObserveHealthCheck(agentID string, healthy bool) {
	if m == nil {
		return
	}
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	m.HealthChecksTotal.WithLabelValues(agentID, result).Inc()
}

// IncEvent counts an emitted registry event.
func (m *Metrics) IncEvent(event string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(event).Inc()
}

// IncHandlerFailure counts a failed event handler.
func (m *Metrics) IncHandlerFailure(event string) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(event).Inc()
}

// CacheHit records a standards cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.StandardsCache.WithLabelValues("hit").Inc()
}

// CacheMiss records a standards cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.StandardsCache.WithLabelValues("miss").Inc()
}

// ObserveProviderCall records one backend call.
func (m *Metrics) ObserveProviderCall(provider, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.ProviderCalls.WithLabelValues(provider, operation, outcome).Inc()
}
