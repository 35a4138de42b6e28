// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// DatabaseConnectionsGauge tracks pool state (open/idle/in_use).
	DatabaseConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connections",
			Help: "Database connection pool state",
		},
		[]string{"state"},
	)

	// TransactionsExecutedTotal counts executed ledger transactions by kind
	// and terminal outcome.
	TransactionsExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_executed_total",
			Help: "Executed ledger transactions by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	// WebhookQueueDepth tracks how many persisted provider events still
	// await application.
	WebhookQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "provider_webhook_queue_depth",
			Help: "Persisted provider events not yet applied",
		},
	)

	// WebhookEventsTotal counts ingested provider events by provider and
	// application result.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_webhook_events_total",
			Help: "Ingested provider webhook events by provider and result",
		},
		[]string{"provider", "result"},
	)
)
