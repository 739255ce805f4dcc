package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for upstream client operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_upstream_requests_total",
		Help: "Total upstream attempts by host and outcome",
	}, []string{"host", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aggregator_upstream_request_duration_seconds",
		Help:    "Upstream call duration in seconds by host, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"host"})

	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_upstream_retries_total",
		Help: "Total number of retry attempts by reason",
	}, []string{"reason"})

	upstreamRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by reason",
	}, []string{"reason"})

	upstreamFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_upstream_faults_total",
		Help: "Total fault records produced by the upstream client by code",
	}, []string{"code"})
)
