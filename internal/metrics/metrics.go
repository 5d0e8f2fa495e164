// Package metrics holds the Prometheus collectors of the sync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eligo",
			Subsystem: "sync",
			Name:      "mutations_total",
			Help:      "Inbound actions by collection, operation and result.",
		},
		[]string{"kind", "op", "result"},
	)

	EventsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eligo",
			Subsystem: "fanout",
			Name:      "events_delivered_total",
			Help:      "Events queued onto live sessions.",
		},
		[]string{"kind"},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eligo",
			Subsystem: "fanout",
			Name:      "events_dropped_total",
			Help:      "Events that could not be queued because the session was closed or full.",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eligo",
			Subsystem: "fanout",
			Name:      "sessions_active",
			Help:      "Registered live sessions.",
		},
	)

	CatchupEvents = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "eligo",
			Subsystem: "catchup",
			Name:      "events",
			Help:      "Events streamed per catch-up.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eligo",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		},
		[]string{"result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eligo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)

	HTTPPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eligo",
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Handler panics turned into 500 responses.",
		},
	)

	OutboxProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eligo",
			Subsystem: "outbox",
			Name:      "processed_total",
			Help:      "Outbox rows handled by the notify worker, by result.",
		},
		[]string{"result"},
	)
)
