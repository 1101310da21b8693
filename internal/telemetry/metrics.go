package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "billing"

// Metrics holds the Prometheus collectors of the billing service.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	InvoicesGenerated *prometheus.CounterVec
	UpstreamErrors    *prometheus.CounterVec
	SummaryDegraded   prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	InvoicesSwept     prometheus.Counter
}

// NewMetrics registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		InvoicesGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoices_generated_total",
				Help:      "Invoices created, by source (usage or payment)",
			},
			[]string{"source"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Failed calls to api-core or the payments API",
			},
			[]string{"operation"},
		),
		SummaryDegraded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summary_degraded_total",
				Help:      "Billing summaries served without top teams",
			},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoice_status_transitions_total",
				Help:      "Invoice status changes",
			},
			[]string{"from", "to"},
		),
		InvoicesSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoices_marked_overdue_total",
				Help:      "Issued invoices moved to overdue by the sweeper",
			},
		),
	}
}
