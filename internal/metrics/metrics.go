package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harrier_ingest_events_total",
			Help: "Total number of raw records accepted",
		},
		[]string{"source"},
	)

	IngestRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_ingest_rejected_total",
			Help: "Total number of ingestion requests rejected on validation",
		},
	)

	// Extraction metrics
	ExtractionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harrier_extract_fallbacks_total",
			Help: "Events that fell back to the unknown or parse_error type",
		},
		[]string{"event_type"},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harrier_extract_duration_seconds",
			Help:    "Duration of field extraction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Enrichment metrics
	EnrichmentLookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harrier_enrich_lookup_failures_total",
			Help: "Geo or reverse-DNS lookups that failed or timed out",
		},
		[]string{"kind"},
	)

	DNSCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_enrich_dns_cache_hits_total",
			Help: "Reverse-DNS lookups answered from the per-process memo",
		},
	)

	// Storage metrics
	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_storage_errors_total",
			Help: "Total number of event store write failures",
		},
	)

	// Evaluation metrics
	RulesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_rules_evaluated_total",
			Help: "Total number of rule evaluations",
		},
	)

	AlertsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_alerts_fired_total",
			Help: "Total number of alert events created",
		},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_alerts_suppressed_total",
			Help: "Firings suppressed by the per-window dedup check",
		},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_notifications_sent_total",
			Help: "Total number of notifications delivered",
		},
	)

	NotificationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_notification_errors_total",
			Help: "Total number of notification transport failures",
		},
	)

	// Queue metrics
	QueueRedeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harrier_queue_redeliveries_total",
			Help: "Work-queue messages negatively acknowledged for retry",
		},
	)
)
