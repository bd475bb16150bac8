package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for certificate issuance.
type Metrics struct {
	Issued          prometheus.Counter
	IssueFailures   prometheus.Counter
	Revoked         prometheus.Counter
	IssueDurationMs prometheus.Histogram
}

// New creates and registers the issuance metrics.
func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_certificates_issued_total",
			Help: "Total number of entitlement certificates issued",
		}),
		IssueFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_certificate_issue_failures_total",
			Help: "Issuance attempts that failed before persisting a certificate",
		}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "charter_certificates_revoked_total",
			Help: "Total number of entitlement certificates revoked",
		}),
		IssueDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "charter_certificate_issue_duration_ms",
			Help:    "Latency of certificate issuance in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
	}
}
