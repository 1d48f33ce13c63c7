package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks refresh cycles by outcome ("success" / "failure").
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_token_refresh_total",
			Help: "Total number of token refresh cycles run by the gateway, by outcome.",
		},
		[]string{"outcome"},
	)

	// Measures duration of successful refresh cycles.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fm_token_refresh_duration_seconds",
			Help:    "Duration of token refresh cycles in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
	)

	// How many requests settled on a single refresh cycle (leader included).
	RefreshFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fm_token_refresh_fanout",
			Help:    "Number of requests settled by one refresh cycle.",
			Buckets: prometheus.LinearBuckets(1, 1, 16),
		},
	)

	// Tracks gateway proxy traffic toward the backend.
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_proxy_requests_total",
			Help: "Total number of proxied API requests (by route, method and status).",
		},
		[]string{"route", "method", "status"},
	)

	ProxyRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fm_proxy_request_duration_seconds",
			Help:    "Duration of proxied API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"route", "method"},
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fm_nats_publish_duration_seconds",
			Help:    "Latency of NATS event publishes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"subject"},
	)

	NATSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_nats_messages_total",
			Help: "Number of NATS event publishes, by subject and result.",
		},
		[]string{"subject", "result"},
	)

	BeaconWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_beacon_writes_total",
			Help: "Number of telemetry beacons written to Postgres, by result.",
		},
		[]string{"result"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_errors_total",
			Help: "Internal error counter by component and kind.",
		},
		[]string{"component", "kind"},
	)
)

// IncRefresh records one refresh cycle outcome.
func IncRefresh(outcome string) {
	RefreshTotal.WithLabelValues(outcome).Inc()
}

// ObserveRefreshDuration records the elapsed time of a refresh cycle.
func ObserveRefreshDuration(start time.Time) {
	RefreshDuration.Observe(time.Since(start).Seconds())
}

// ObserveRefreshFanout records how many requests one refresh cycle settled.
func ObserveRefreshFanout(n int) {
	RefreshFanout.Observe(float64(n))
}

// ObserveDuration records the time taken since start into the given histogram.
func ObserveDuration(vec *prometheus.HistogramVec, start time.Time, labels ...string) {
	vec.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

// IncNATSMessage records one NATS publish attempt.
func IncNATSMessage(subject, result string) {
	NATSMessagesTotal.WithLabelValues(subject, result).Inc()
}

// IncError bumps the internal error counter.
func IncError(component, kind string) {
	ErrorsTotal.WithLabelValues(component, kind).Inc()
}
