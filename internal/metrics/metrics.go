package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Hub metrics
	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_hub_connections",
			Help: "Currently open hub connections",
		},
	)

	HubEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_hub_events_received_total",
			Help: "Total inbound hub events",
		},
		[]string{"type"},
	)

	HubEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_hub_events_delivered_total",
			Help: "Total outbound events delivered to connections",
		},
		[]string{"type"},
	)

	HubDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_hub_delivery_failures_total",
			Help: "Sends that failed and were skipped during fan-out",
		},
	)

	HubErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_hub_errors_total",
			Help: "Error events sent back to originating connections",
		},
		[]string{"reason"}, // "decode", "store", "not_found", "unregistered"
	)

	// Business metrics
	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_messages_posted_total",
			Help: "Total collaboration messages persisted",
		},
	)

	MemoriesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_memories_stored_total",
			Help: "Total memories persisted",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_store_latency_seconds",
			Help:    "Persistent store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"op"},
	)
)
