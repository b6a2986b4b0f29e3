// Package observability exposes Prometheus metrics for supervised backup runs.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers the run signals: throughput and failure rate per outcome
// class, and run latency.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewMetrics creates and registers the run metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgbackup_runs_total",
			Help: "Completed backup runs by outcome class.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "pgbackup_run_duration_seconds",
			Help: "End-to-end backup run latency in seconds.",
			// Runs span seconds (failed submissions) to tens of minutes.
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	reg.MustRegister(m.runsTotal, m.runDuration)
	return m
}

// ObserveRun records one completed run.
func (m *Metrics) ObserveRun(outcome string, duration time.Duration) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
}
