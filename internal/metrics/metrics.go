package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"queue"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of job attempts by outcome",
		},
		[]string{"queue", "outcome"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_processing_duration_seconds",
			Help:    "Job attempt duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"queue"},
	)

	WorkerActiveJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_active_jobs",
			Help: "Jobs currently being processed",
		},
		[]string{"queue"},
	)

	TranscodeTiersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcode_tiers_total",
			Help: "Total number of rendition tiers encoded",
		},
		[]string{"tier", "status"},
	)

	NotificationBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_batches_total",
			Help: "Total number of notification batches sent",
		},
		[]string{"scope", "status"},
	)

	BundlesBuiltTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundles_built_total",
			Help: "Total number of album bundles built",
		},
		[]string{"variant", "status"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)
