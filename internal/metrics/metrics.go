// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsTotal counts dispatched invocations per action and result code
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_invocations_total",
			Help: "Total number of dispatched invocations",
		},
		[]string{"action", "code"},
	)

	// InvocationDuration tracks end-to-end invocation latency per action
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_invocation_duration_seconds",
			Help:    "Invocation latency in seconds, admission to envelope",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// RetriesTotal counts retry attempts per action
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retries_total",
			Help: "Total number of handler retries",
		},
		[]string{"action"},
	)

	// BreakerState exposes the circuit breaker state per action (0=closed, 1=open, 2=half-open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_breaker_state",
			Help: "Circuit breaker state per action (0=closed, 1=open, 2=half-open)",
		},
		[]string{"action"},
	)

	// BulkheadActive tracks executions currently holding a bulkhead slot
	BulkheadActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_bulkhead_active",
			Help: "Invocations currently executing per action",
		},
		[]string{"action"},
	)

	// BulkheadWaiting tracks callers queued for a bulkhead slot
	BulkheadWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_bulkhead_waiting",
			Help: "Invocations queued for an execution slot per action",
		},
		[]string{"action"},
	)

	// QueueMessagesTotal counts consumed queue messages per queue and outcome
	QueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_queue_messages_total",
			Help: "Total number of queue messages by outcome (processed, dropped, requeued)",
		},
		[]string{"queue", "outcome"},
	)

	// EventsClassified counts serverless events per detected shape
	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_classified_total",
			Help: "Total number of serverless events per detected shape",
		},
		[]string{"shape"},
	)

	// HTTPRequestsTotal counts ingress HTTP requests per route and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP ingress requests",
		},
		[]string{"route", "status"},
	)

	// DBPoolUsage tracks database connection pool usage percentage
	DBPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)

// BreakerStateValue converts a breaker state name to its gauge value.
func BreakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}
