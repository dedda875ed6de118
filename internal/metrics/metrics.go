package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts dispatched API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsbuzz_client_requests_total",
			Help: "The total number of API requests dispatched.",
		},
		[]string{"method"},
	)

	// RequestFailures counts requests that surfaced a terminal error.
	RequestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsbuzz_client_request_failures_total",
			Help: "The total number of requests that failed after all recovery.",
		},
		[]string{"code"},
	)

	// RequestRetries counts automatic retries of transient failures.
	RequestRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsbuzz_client_request_retries_total",
			Help: "The total number of automatic request retries.",
		},
		[]string{"method"},
	)

	// TokenRefreshes counts refresh transport calls actually made.
	TokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subsbuzz_client_token_refreshes_total",
			Help: "The total number of token refresh calls issued.",
		},
	)

	// TokenRefreshFailures counts refresh calls that failed.
	TokenRefreshFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subsbuzz_client_token_refresh_failures_total",
			Help: "The total number of token refresh calls that failed.",
		},
	)

	// RefreshWaiters shows how many requests are currently blocked on an
	// in-flight refresh.
	RefreshWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subsbuzz_client_refresh_waiters",
			Help: "The number of requests waiting on the in-flight token refresh.",
		},
	)

	// RequestDuration is a histogram of request round-trip time.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subsbuzz_client_request_duration_seconds",
			Help:    "A histogram of API request duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
