package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the verifier pipeline.
type Metrics struct {
	VerificationsTotal *prometheus.CounterVec
	Duration           *prometheus.HistogramVec
}

// New creates and registers the verification metrics. Call once per process;
// Prometheus panics on duplicate registration.
func New() *Metrics {
	return &Metrics{
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_verifications_total",
			Help: "Completed verification pipelines by kind and outcome",
		}, []string{"kind", "outcome"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verigate_verification_duration_seconds",
			Help:    "Wall-clock duration of verification pipelines by kind",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),
	}
}

// RecordVerification counts one finished pipeline and its duration. Outcome
// is "verified", "failed" or the failure code that stopped the pipeline.
func (m *Metrics) RecordVerification(kind, outcome string, elapsed time.Duration) {
	m.VerificationsTotal.WithLabelValues(kind, outcome).Inc()
	m.Duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
