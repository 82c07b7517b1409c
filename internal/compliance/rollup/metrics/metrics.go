package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the rollup engine.
type Metrics struct {
	MeasuresUpdated prometheus.Counter
	RecordsUpdated  prometheus.Counter
	SweepsStarted   prometheus.Counter
	SweepDuration   prometheus.Histogram
}

// New creates and registers rollup metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		MeasuresUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_rollup_measures_updated_total",
			Help: "Control measures whose status changed during rollup",
		}),
		RecordsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_rollup_records_updated_total",
			Help: "Compliance records whose status changed during rollup",
		}),
		SweepsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_rollup_sweeps_total",
			Help: "Full-tenant recalculation sweeps started",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "conforma_rollup_sweep_duration_seconds",
			Help:    "Duration of full-tenant recalculation sweeps",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
