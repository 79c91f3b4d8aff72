package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for rate limiting.
type Metrics struct {
	ChecksTotal *prometheus.CounterVec
}

// New creates and registers the rate limiting metrics. Call once per
// process; Prometheus panics on duplicate registration.
func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_rate_limit_checks_total",
			Help: "Rate limit admission checks by source and outcome",
		}, []string{"source", "outcome"}),
	}
}

// RecordCheck counts one admission check outcome ("allowed" or "rejected").
func (m *Metrics) RecordCheck(source, outcome string) {
	m.ChecksTotal.WithLabelValues(source, outcome).Inc()
}
