package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aura"

// Metrics holds the Prometheus counters, histograms, and gauges for the agent.
type Metrics struct {
	FeedItems       *prometheus.CounterVec // labels: feed
	CyclesTotal     *prometheus.CounterVec // labels: status
	CycleDuration   prometheus.Histogram
	StageDuration   *prometheus.HistogramVec // labels: stage
	PipelineRunning prometheus.Gauge

	// Correlation metrics.
	IncidentsActive     prometheus.Gauge
	CorrelationOutcomes *prometheus.CounterVec // labels: outcome={created,merged}
	CorrelationReplans  prometheus.Counter

	// Verification metrics.
	VerificationScore    prometheus.Histogram
	VerificationFallback prometheus.Counter

	// External call metrics.
	ExternalRetries  *prometheus.CounterVec // labels: operation, kind={rate_limit,backoff}
	ExternalFailures *prometheus.CounterVec // labels: operation

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge

	EventsPublished prometheus.Counter
}

// NewMetrics creates and registers all agent metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		FeedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_items_total",
			Help:      help("Raw items pulled from each feed."),
		}, []string{"feed"}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      help("Completed orchestration cycles by final status."),
		}, []string{"status"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      help("Duration of a complete ingest-to-consolidate cycle."),
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      help("Duration of each pipeline stage."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the pipeline is active, 0 when shut down."),
		}),
		IncidentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incidents_active",
			Help:      help("Incidents currently held by the correlation engine."),
		}),
		CorrelationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_outcomes_total",
			Help:      help("Reports consolidated by outcome."),
		}, []string{"outcome"}),
		CorrelationReplans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_replans_total",
			Help:      help("Correlation plans discarded because the store changed underneath them."),
		}),
		VerificationScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_score",
			Help:      help("Credibility scores assigned to reports."),
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		VerificationFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_fallback_total",
			Help:      help("Verifications scored by the heuristic after the model failed."),
		}),
		ExternalRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_retries_total",
			Help:      help("Retries of external calls by operation and kind."),
		}, []string{"operation", "kind"}),
		ExternalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_failures_total",
			Help:      help("External calls that exhausted their retry budget."),
		}, []string{"operation"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      help("1 when Mapbox geocoding is enabled, 0 otherwise."),
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      help("Consolidation events written to the sink."),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FeedItems,
		m.CyclesTotal,
		m.CycleDuration,
		m.StageDuration,
		m.PipelineRunning,
		m.IncidentsActive,
		m.CorrelationOutcomes,
		m.CorrelationReplans,
		m.VerificationScore,
		m.VerificationFallback,
		m.ExternalRetries,
		m.ExternalFailures,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
		m.EventsPublished,
	}
}
