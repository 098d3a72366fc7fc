package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Source outcomes recorded by RecordSource.
const (
	OutcomeOK          = "ok"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds all Prometheus metrics for the moderation service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	VerdictTotal         *prometheus.CounterVec
	SourceOutcomeTotal   *prometheus.CounterVec
	UpstreamDurationMs   *prometheus.HistogramVec
	ModerationDurationMs prometheus.Histogram
	CacheLookupTotal     *prometheus.CounterVec
	RateLimitedTotal     prometheus.Counter
}

// NewMetrics creates and registers all metrics on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerdictTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_verdict_total",
			Help: "Total moderation verdicts by final action.",
		}, []string{"action"}),

		SourceOutcomeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_source_outcome_total",
			Help: "Signal source invocations by outcome.",
		}, []string{"source", "outcome"}),

		UpstreamDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moderation_upstream_duration_ms",
			Help:    "Upstream completion call duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 30000},
		}, []string{"provider", "status"}),

		ModerationDurationMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "moderation_duration_ms",
			Help:    "End-to-end Moderate duration in milliseconds.",
			Buckets: []float64{1, 5, 25, 100, 250, 1000, 2500, 5000, 10000, 20000},
		}),

		CacheLookupTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_cache_lookup_total",
			Help: "Verdict cache lookups by result.",
		}, []string{"result"}),

		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "moderation_rate_limited_total",
			Help: "Moderation requests rejected by the per-client rate limit.",
		}),
	}
}

func (m *Metrics) RecordVerdict(action string, durationMs float64) {
	if m == nil {
		return
	}
	m.VerdictTotal.WithLabelValues(action).Inc()
	m.ModerationDurationMs.Observe(durationMs)
}

// RecordSource records the outcome of one signal source invocation.
func (m *Metrics) RecordSource(source, outcome string) {
	if m == nil {
		return
	}
	m.SourceOutcomeTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RecordUpstream(provider, status string, durationMs float64) {
	if m == nil {
		return
	}
	m.UpstreamDurationMs.WithLabelValues(provider, status).Observe(durationMs)
}

// RecordCacheLookup records a cache hit ("hit"), miss ("miss"), or error ("error").
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}
