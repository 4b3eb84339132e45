package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed The total number of processed messages (counter)
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingFailed total number of message processing failures (counter)
	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingDuration The total time spent processing messages (summary with quantiles 0.5, 0.9, and 0.99)
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)

	SourceReadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "availability",
			Name:      "source_read_failures_total",
			Help:      "Availability source reads that failed and were skipped",
		},
		[]string{"source"},
	)

	CapacityInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "availability",
			Name:      "capacity_inconsistencies_total",
			Help:      "Disagreements between availability sources",
		},
	)

	// Refreshes counts authoritative refreshes by outcome ("ok" or "failed").
	Refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconcile",
			Name:      "refreshes_total",
			Help:      "Authoritative view refreshes",
		},
		[]string{"outcome"},
	)

	OptimisticPatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconcile",
			Name:      "optimistic_patches_total",
			Help:      "Change messages applied to a view before the authoritative refresh",
		},
		[]string{"table"},
	)

	DuplicateChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reconcile",
			Name:      "duplicate_changes_total",
			Help:      "Change messages skipped because they were already applied",
		},
	)

	SubscriptionLosses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reconcile",
			Name:      "subscription_losses_total",
			Help:      "Change subscriptions that dropped and had to be re-established",
		},
	)

	ActiveListeners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reconcile",
			Name:      "active_listeners",
			Help:      "Events currently followed by a listener",
		},
	)

	// CheckIns counts check-in calls by result ("new" or "already").
	CheckIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "check_ins_total",
			Help:      "Check-in calls by result",
		},
		[]string{"result"},
	)

	CredentialsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "backfill",
			Name:      "credentials_issued_total",
			Help:      "Credentials minted by backfill",
		},
	)

	PartialBackfills = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "backfill",
			Name:      "partial_total",
			Help:      "Backfills that stopped before issuing every missing credential",
		},
	)

	ScanMemoryFlushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scan_memory",
			Name:      "flush_failures_total",
			Help:      "Scan memory writes that could not be persisted",
		},
	)
)
