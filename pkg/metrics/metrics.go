package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run-level metrics
	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turbosync_sync_duration_seconds",
			Help:    "Duration of a full sync run in seconds, by terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	SchedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbosync_scheduler_runs_total",
			Help: "Total number of sync runs dispatched, by trigger source",
		},
		[]string{"trigger"},
	)

	StaleSyncsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "turbosync_stale_syncs_total",
			Help: "Total number of runs recovered as stuck or overdue",
		},
	)

	// Record-processing metrics
	RecordsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbosync_records_processed_total",
			Help: "Total number of catalog rows processed, by integration",
		},
		[]string{"integration"},
	)

	RecordsInsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbosync_records_inserted_total",
			Help: "Total number of catalog rows inserted into the primary store, by integration",
		},
		[]string{"integration"},
	)

	RecordsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbosync_records_skipped_total",
			Help: "Total number of catalog rows skipped as invalid, by integration",
		},
		[]string{"integration"},
	)

	RecordsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbosync_records_failed_total",
			Help: "Total number of catalog rows that failed to load, by integration",
		},
		[]string{"integration"},
	)

	// Search store metrics
	SearchIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbosync_search_indexed_total",
			Help: "Total number of documents indexed into the search store, by integration",
		},
		[]string{"integration"},
	)

	SearchBulkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbosync_search_bulk_errors_total",
			Help: "Total number of _bulk item errors returned by the search store, by integration",
		},
		[]string{"integration"},
	)

	// FTP fetch metrics
	FTPDownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turbosync_ftp_download_duration_seconds",
			Help:    "Duration of a single file download over FTP",
			Buckets: prometheus.DefBuckets,
		},
	)

	FTPFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbosync_ftp_failures_total",
			Help: "Total number of FTP download failures after retries exhausted, by integration",
		},
		[]string{"integration"},
	)

	// Transform metrics
	TransformDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turbosync_transform_duration_seconds",
			Help:    "Duration of transforming a single CSV file",
			Buckets: prometheus.DefBuckets,
		},
	)

	TransformRowsPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turbosync_transform_rate_rows_per_second",
			Help: "Rolling row-processing rate of the transform stage",
		},
	)

	// Primary store metrics
	PrimaryLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turbosync_primary_load_duration_seconds",
			Help:    "Duration of loading one shard into the primary store",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Queue depth gauges, set inline by the pipeline engine as it
	// enqueues shards (see pkg/pipeline/pipeline.go)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turbosync_queue_depth",
			Help: "Current number of pending shards in a pipeline queue",
		},
		[]string{"queue"},
	)

	RunningSyncsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turbosync_running_syncs",
			Help: "Number of syncs currently in the running state",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SyncDuration,
		SchedulerRunsTotal,
		StaleSyncsTotal,
		RecordsProcessedTotal,
		RecordsInsertedTotal,
		RecordsSkippedTotal,
		RecordsFailedTotal,
		SearchIndexedTotal,
		SearchBulkErrorsTotal,
		FTPDownloadDuration,
		FTPFailuresTotal,
		TransformDuration,
		TransformRowsPerSecond,
		PrimaryLoadDuration,
		QueueDepth,
		RunningSyncsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
