// Package metrics holds the prometheus collectors of the peek service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peek_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peek_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// PushDeliveries counts per-subscription outcomes: delivered, failed, malformed.
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peek_push_deliveries_total",
			Help: "Web Push deliveries by result",
		},
		[]string{"result"},
	)

	PushDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peek_push_dispatches_total",
			Help: "Notification dispatches by trigger group",
		},
		[]string{"group"},
	)

	PeekUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peek_group_updates_total",
			Help: "Peek group writes by group and operation (update, clear)",
		},
		[]string{"group", "op"},
	)

	// CleanupFailures counts best-effort side effects that failed (screenshot deletes).
	CleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peek_screenshot_cleanup_failures_total",
			Help: "Screenshot deletions that failed and left an orphaned artifact",
		},
	)

	PushBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peek_push_breaker_state",
			Help: "Push delivery circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(route, method string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// RecordPushDispatch is the observability hook for best-effort push dispatch.
func RecordPushDispatch(group string, delivered, failed, malformed int) {
	PushDispatches.WithLabelValues(group).Inc()
	PushDeliveries.WithLabelValues("delivered").Add(float64(delivered))
	PushDeliveries.WithLabelValues("failed").Add(float64(failed))
	PushDeliveries.WithLabelValues("malformed").Add(float64(malformed))
}
