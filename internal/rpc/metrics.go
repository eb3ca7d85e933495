package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_rpc_requests_total",
			Help: "Total number of remote calls by operation",
		},
		[]string{"operation"},
	)

	RPCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_rpc_retries_total",
			Help: "Total number of retried remote calls by operation",
		},
		[]string{"operation"},
	)

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_rpc_errors_total",
			Help: "Total number of remote call errors by operation and type",
		},
		[]string{"operation", "error_type"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holderledger_rpc_request_duration_seconds",
			Help:    "Duration of remote call attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holderledger_rpc_breaker_trips_total",
			Help: "Number of times the timeout breaker paused remote calls",
		},
	)

	BudgetWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "holderledger_rpc_budget_wait_seconds",
			Help:    "Time spent waiting for the request budget",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

func RPCMethodInc(operation string) {
	RPCRequests.WithLabelValues(operation).Inc()
}

func RPCRetryInc(operation string) {
	RPCRetries.WithLabelValues(operation).Inc()
}

func RPCMethodDuration(operation string, duration time.Duration) {
	RPCDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RPCMethodError(operation, errorType string) {
	RPCErrors.WithLabelValues(operation, errorType).Inc()
}
