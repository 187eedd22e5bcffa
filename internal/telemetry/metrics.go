// internal/telemetry/metrics.go
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus series fed by every recorded recovery.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics registers the recovery series on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "locus",
			Name:      "recovery_attempts_total",
			Help:      "Recovery outcomes by winning strategy; exhausted attempts use strategy \"none\".",
		}, []string{"strategy", "outcome"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "locus",
			Name:      "recovery_duration_seconds",
			Help:      "Time spent in the recovery ensemble per attempt.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(e Entry) {
	if m == nil {
		return
	}
	strategy := e.Strategy
	if strategy == "" {
		strategy = "none"
	}
	m.Attempts.WithLabelValues(strategy, string(e.Type)).Inc()
	m.Duration.WithLabelValues(string(e.Type)).Observe(float64(e.DurationMs) / 1000)
}
