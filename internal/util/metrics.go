package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_confirmed_total",
		Help: "Total number of bookings transitioned to confirmed and paid",
	})

	BookingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Total number of cancelled bookings",
	})

	BookingTransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_rejected_total",
		Help: "Total number of rejected booking transitions",
	}, []string{"command", "reason"})

	PaymentGatewayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_seconds",
		Help:    "Latency of checkout session creation",
		Buckets: prometheus.DefBuckets,
	})

	PaymentGatewayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_gateway_failures_total",
		Help: "Total number of failed checkout session creations",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Total number of payment webhook deliveries",
	}, []string{"type", "outcome"})

	IndexSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_sync_total",
		Help: "Total number of index sync handler runs",
	}, []string{"event", "outcome"})

	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_bus_queue_depth",
		Help: "Number of domain events waiting for dispatch",
	})

	EmbeddingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "embedding_request_latency_seconds",
		Help:    "Latency of embedding API requests",
		Buckets: prometheus.DefBuckets,
	})

	EmbeddingFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedding_fallback_total",
		Help: "Total number of zero-vector fallbacks",
	}, []string{"reason"})

	EmbeddingCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedding_cache_hits_total",
		Help: "Total number of embeddings served from cache",
	})

	ReindexDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vector_reindex_duration_seconds",
		Help:    "Duration of full vector index resyncs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	ReindexPointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vector_reindex_points_total",
		Help: "Total number of points written by full resyncs",
	}, []string{"type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
