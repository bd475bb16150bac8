package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for guest/host resolution.
type Metrics struct {
	HostLookups       prometheus.Counter
	HostLookupMisses  prometheus.Counter
	BulkMapRequests   prometheus.Counter
	BulkMapDurationMs prometheus.Histogram
}

// New creates and registers the resolver metrics.
func New() *Metrics {
	return &Metrics{
		HostLookups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_host_lookups_total",
			Help: "Total number of single guest-to-host lookups",
		}),
		HostLookupMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_host_lookup_misses_total",
			Help: "Guest-to-host lookups that found no claiming host",
		}),
		BulkMapRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_bulk_guest_map_requests_total",
			Help: "Total number of bulk guest mapping requests",
		}),
		BulkMapDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "charter_bulk_guest_map_duration_ms",
			Help:    "Latency of bulk guest mapping requests in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}
