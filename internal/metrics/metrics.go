package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sessions_active",
		Help: "Currently active client sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_total",
		Help: "Total client sessions accepted",
	})

	UpstreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_events_total",
		Help: "Agent runtime events by classified kind",
	}, []string{"kind"})

	DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_duplicates_suppressed_total",
		Help: "Redundant tool results and completion signals collapsed by dedup",
	})

	ProductsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_products_events_total",
		Help: "Products events delivered to clients",
	})

	InboundDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_inbound_dropped_total",
		Help: "Malformed inbound client messages logged and dropped",
	})

	IdleTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_idle_timeouts_total",
		Help: "Sessions force-closed after upstream inactivity",
	})

	SearchRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_search_requests_total",
		Help: "Vector search backend requests",
	})

	SearchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_search_errors_total",
		Help: "Vector search backend failures (surfaced as empty results)",
	})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_search_duration_seconds",
		Help:    "Vector search round-trip latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	})

	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_chat_requests_total",
		Help: "Text-variant chat requests by engine",
	}, []string{"engine"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
