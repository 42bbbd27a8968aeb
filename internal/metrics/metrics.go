package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters exported at /metrics alongside the flat health format.
var (
	EventsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_submitted_total",
		Help: "Events accepted onto the pipeline queue.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_dropped_total",
		Help: "Events dropped because the pipeline queue was full.",
	})

	EventsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_deduplicated_total",
		Help: "Events suppressed as duplicates.",
	})

	EventsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_rate_limited_total",
		Help: "Events rejected by the per-user rate limiter.",
	})

	NotificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notifications successfully pushed over the live channel.",
	})

	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_delivery_failures_total",
		Help: "Failed push attempts (before and after retries).",
	})
)

// HTTP request metrics recorded by the API middleware.
var (
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"path", "method", "status"})
)
