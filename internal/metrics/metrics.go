package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_events_ingested_total",
			Help: "Events accepted into the store, by provider",
		},
		[]string{"provider"},
	)

	EventsDuplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_events_duplicated_total",
			Help: "Ingestion attempts collapsed by idempotency key, by provider",
		},
		[]string{"provider"},
	)

	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_ingest_rejected_total",
			Help: "Payloads rejected at ingress, by reason",
		},
		[]string{"reason"},
	)

	// Processing metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_events_processed_total",
			Help: "Events that reached a terminal status, by status",
		},
		[]string{"status"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "syncbridge_event_processing_duration_seconds",
			Help:    "Duration of one event's filter-transform-apply pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Outbound metrics
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_dispatch_attempts_total",
			Help: "Outbound delivery attempts, by outcome",
		},
		[]string{"outcome"},
	)

	OutboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncbridge_outbound_queue_depth",
			Help: "Pending rows observed at the start of the last sweep",
		},
	)

	// Poller metrics
	PollerDealsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncbridge_poller_deals_fetched_total",
			Help: "External entities fetched by reconciliation runs",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_ratelimit_hits_total",
			Help: "Ingest requests rejected by the rate limiter, by provider",
		},
		[]string{"provider"},
	)
)
