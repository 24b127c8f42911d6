package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_dashboard"

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard service.
type Metrics struct {
	// Pipeline metrics.
	PipelineRuns     *prometheus.CounterVec // labels: outcome={done,failed}, failed_state={none,idle,resolving,fetching_weather}
	PipelineDuration prometheus.Histogram
	StaleResults     prometheus.Counter
	AqiUnavailable   prometheus.Counter

	// Upstream metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: endpoint={geocode,reverse_geocode,weather,air_quality}, outcome={success,error,empty,circuit_open}
	UpstreamDuration *prometheus.HistogramVec // labels: endpoint

	// Geocoding cache metrics.
	GeocodeCache *prometheus.CounterVec // labels: method={forward,reverse}, result={hit,miss}

	// Local cache metrics.
	LocalCache *prometheus.CounterVec // labels: op={load,save}, result={hit,miss,expired,corrupt,ok,error}

	// Publisher and refresher metrics.
	SnapshotsPublished *prometheus.CounterVec // labels: outcome={success,error}
	Refreshes          *prometheus.CounterVec // labels: outcome={success,error,skipped}
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Retrieval pipeline runs by outcome and the state a failure came from.",
		}, []string{"outcome", "failed_state"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a complete resolve-fetch-cache run.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StaleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_discarded_total",
			Help:      "Completed runs discarded because a newer query superseded them.",
		}),
		AqiUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aqi_unavailable_total",
			Help:      "Runs that completed without an air quality index.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "OpenWeather API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "OpenWeather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		LocalCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_cache_operations_total",
			Help:      "Last-snapshot cache operations by kind and result.",
		}, []string{"op", "result"}),
		SnapshotsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Snapshot events published to Kafka by outcome.",
		}, []string{"outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_refreshes_total",
			Help:      "Scheduled refreshes of the last query by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRuns,
		m.PipelineDuration,
		m.StaleResults,
		m.AqiUnavailable,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.GeocodeCache,
		m.LocalCache,
		m.SnapshotsPublished,
		m.Refreshes,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
