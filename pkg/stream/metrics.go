package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by a Runner.
type Metrics struct {
	processed prometheus.Counter
	rejected  prometheus.Counter
	scores    prometheus.Histogram
	window    prometheus.Gauge
}

// NewMetrics creates the runner collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamguard_samples_processed_total",
			Help: "Total number of samples scored and fitted",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamguard_samples_rejected_total",
			Help: "Total number of samples rejected for a dimension mismatch",
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamguard_anomaly_score",
			Help:    "Distribution of anomaly scores",
			Buckets: prometheus.LinearBuckets(0.05, 0.05, 20), // 0.05 to 1.0
		}),
		window: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamguard_window_samples",
			Help: "Number of samples the model currently accounts for",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.processed, m.rejected, m.scores, m.window)
	}
	return m
}
