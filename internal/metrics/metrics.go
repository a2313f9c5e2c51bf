package metrics

import (
	"triage-service/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "triage"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	Predictions     *prometheus.CounterVec // labels: input_type, disaster_type
	ClassifierTiers *prometheus.CounterVec // labels: input_type, tier
	StoreFailures   prometheus.Counter
	PublishFailures prometheus.Counter
	ModelsLoaded    *prometheus.GaugeVec // labels: modality

	RequestDuration *prometheus.HistogramVec // labels: method, route, status
}

// NewMetrics creates all service metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served by input type and disaster type.",
		}, []string{"input_type", "disaster_type"}),
		ClassifierTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_tier_total",
			Help:      "Results by the classifier tier that produced them.",
		}, []string{"input_type", "tier"}),
		StoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Predictions that could not be written to the store.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Predictions that could not be published to the event sink.",
		}),
		ModelsLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when the upstream model for a modality is available, 0 otherwise.",
		}, []string{"modality"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.Predictions,
		m.ClassifierTiers,
		m.StoreFailures,
		m.PublishFailures,
		m.ModelsLoaded,
		m.RequestDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObserveTier counts the classifier tier behind a result.
func (m *Metrics) ObserveTier(modality models.InputType, tier string) {
	m.ClassifierTiers.WithLabelValues(string(modality), tier).Inc()
}

// SetModelLoaded records whether a modality has an upstream model.
func (m *Metrics) SetModelLoaded(modality models.InputType, loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	m.ModelsLoaded.WithLabelValues(string(modality)).Set(v)
}
