package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookloop_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookloop_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RequestsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookloop_requests_created_total",
			Help: "Total requests created",
		},
		[]string{"kind"},
	)

	RequestTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookloop_request_transitions_total",
			Help: "Total request status transitions",
		},
		[]string{"to"},
	)

	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookloop_messages_appended_total",
			Help: "Total conversation messages appended",
		},
	)

	// Realtime metrics
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookloop_live_subscribers",
			Help: "Open conversation subscriptions on this instance",
		},
	)

	SubscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookloop_subscribers_dropped_total",
			Help: "Subscriptions closed because their buffer was full",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookloop_events_published_total",
			Help: "Events fanned out to local subscribers",
		},
		[]string{"type", "origin"}, // origin: "local" or "relay"
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookloop_relay_errors_total",
			Help: "Redis relay failures",
		},
		[]string{"op"},
	)
)
