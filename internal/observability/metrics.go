package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "raintree"

// Metrics holds the Prometheus counters, histograms, and gauges for the viewer service.
type Metrics struct {
	TreeLoads *prometheus.CounterVec // labels: outcome={success,error,superseded}
	TreeNodes prometheus.Gauge

	Predictions    *prometheus.CounterVec // labels: source={form,forecast}, outcome={rain,no_rain,insufficient_data,superseded,error}
	PathLength     prometheus.Histogram
	StaleResponses prometheus.Counter

	// Forecast source metrics.
	ForecastRequests    *prometheus.CounterVec // labels: outcome={success,error,unavailable}
	ForecastCache       *prometheus.CounterVec // labels: result={hit,miss}
	ForecastAPIDuration prometheus.Histogram
	ForecastEnabled     prometheus.Gauge

	PredictionsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

var pathLengthBuckets = []float64{1, 2, 3, 4, 5, 6, 8, 10, 16, 32, 64}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		TreeLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_loads_total",
			Help:      "Tree load attempts by outcome.",
		}, []string{"outcome"}),
		TreeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tree_nodes",
			Help:      "Number of nodes in the currently loaded tree.",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by feature source and outcome.",
		}, []string{"source", "outcome"}),
		PathLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_path_length",
			Help:      "Number of nodes visited per successful classification.",
			Buckets:   pathLengthBuckets,
		}),
		StaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_stale_responses_total",
			Help:      "Forecast results discarded because a newer request was issued.",
		}),
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_requests_total",
			Help:      "Forecast API requests by outcome.",
		}, []string{"outcome"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		ForecastAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_api_duration_seconds",
			Help:      "Open-Meteo API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ForecastEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forecast_enabled",
			Help:      "1 when forecast-driven prediction is enabled, 0 otherwise.",
		}),
		PredictionsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_published_total",
			Help:      "Prediction events written to Kafka by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.TreeLoads,
		m.TreeNodes,
		m.Predictions,
		m.PathLength,
		m.StaleResponses,
		m.ForecastRequests,
		m.ForecastCache,
		m.ForecastAPIDuration,
		m.ForecastEnabled,
		m.PredictionsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		TreeLoads:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "tree_loads_total"}, []string{"outcome"}),
		TreeNodes:            prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "tree_nodes"}),
		Predictions:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "predictions_total"}, []string{"source", "outcome"}),
		PathLength:           prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "prediction_path_length", Buckets: pathLengthBuckets}),
		StaleResponses:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "forecast_stale_responses_total"}),
		ForecastRequests:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "forecast_requests_total"}, []string{"outcome"}),
		ForecastCache:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "forecast_cache_total"}, []string{"result"}),
		ForecastAPIDuration:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "forecast_api_duration_seconds"}),
		ForecastEnabled:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "forecast_enabled"}),
		PredictionsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "predictions_published_total"}, []string{"outcome"}),
	}
}
