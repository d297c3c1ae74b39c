// Package metrics exposes Prometheus collectors for the content pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	PipelineRuns        *prometheus.CounterVec
	PipelineDuration    *prometheus.HistogramVec
	KeywordSelections   *prometheus.CounterVec
	TrendProviderErrors *prometheus.CounterVec
	GenerationFallbacks *prometheus.CounterVec
	RateLimited         *prometheus.CounterVec
	StaleProjects       prometheus.Gauge
	ChatTurns           *prometheus.CounterVec
}

// New registers the collectors on reg. Passing a fresh registry keeps tests
// isolated from the process-wide default.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscribe_pipeline_runs_total",
			Help: "Content pipeline runs by project type and outcome",
		}, []string{"project_type", "outcome"}),

		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendscribe_pipeline_duration_seconds",
			Help:    "Content pipeline latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"project_type"}),

		KeywordSelections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscribe_keyword_selections_total",
			Help: "Keyword selections by source (live, reranked, fallback)",
		}, []string{"source"}),

		TrendProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscribe_trend_provider_errors_total",
			Help: "Trend provider failures by kind",
		}, []string{"kind"}),

		GenerationFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscribe_generation_fallbacks_total",
			Help: "Generations replaced by template text, by failure kind",
		}, []string{"kind"}),

		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscribe_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route group",
		}, []string{"route"}),

		StaleProjects: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trendscribe_stale_generating_projects",
			Help: "Projects stuck in generating longer than the configured threshold",
		}),

		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscribe_chat_turns_total",
			Help: "Chat turns by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRun(projectType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(projectType, outcome).Inc()
	m.PipelineDuration.WithLabelValues(projectType).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveKeywordSource(source string) {
	if m == nil || source == "" {
		return
	}
	m.KeywordSelections.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveTrendError(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.TrendProviderErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveGenerationFallback(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.GenerationFallbacks.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}

func (m *Metrics) SetStaleProjects(n int64) {
	if m == nil {
		return
	}
	m.StaleProjects.Set(float64(n))
}

func (m *Metrics) ObserveChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(outcome).Inc()
}
