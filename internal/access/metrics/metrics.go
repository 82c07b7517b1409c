package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the access evaluator.
type Metrics struct {
	ChecksAllowed prometheus.Counter
	ChecksDenied  prometheus.Counter
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
}

// New creates and registers access metrics on the default registry.
// Call once per process; services receive the instance via options.
func New() *Metrics {
	return &Metrics{
		ChecksAllowed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_permission_checks_allowed_total",
			Help: "Permission checks that granted access",
		}),
		ChecksDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_permission_checks_denied_total",
			Help: "Permission checks that denied access",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_permission_cache_hits_total",
			Help: "Permission set resolutions served from cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_permission_cache_misses_total",
			Help: "Permission set resolutions that fell through to the catalog",
		}),
	}
}
