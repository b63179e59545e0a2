/*
Package metrics defines and registers turbosync's Prometheus collectors and
exposes them over HTTP for scraping.

# Metrics catalog

Run-level:

	turbosync_sync_duration_seconds{status}       histogram
	turbosync_scheduler_runs_total{trigger}        counter
	turbosync_stale_syncs_total                    counter
	turbosync_running_syncs                        gauge

Record processing, labelled by integration:

	turbosync_records_processed_total{integration}
	turbosync_records_inserted_total{integration}
	turbosync_records_skipped_total{integration}
	turbosync_records_failed_total{integration}

Search store:

	turbosync_search_indexed_total{integration}
	turbosync_search_bulk_errors_total{integration}

FTP and transform:

	turbosync_ftp_download_duration_seconds
	turbosync_ftp_failures_total{integration}
	turbosync_transform_duration_seconds
	turbosync_transform_rate_rows_per_second
	turbosync_primary_load_duration_seconds
	turbosync_queue_depth{queue}

# Timer

Timer mirrors a stopwatch: NewTimer() at the start of an operation, then
ObserveDuration/ObserveDurationVec once it finishes.

	timer := metrics.NewTimer()
	runShard()
	timer.ObserveDuration(metrics.PrimaryLoadDuration)

# Exposition

Handler() returns the promhttp handler; the runtime mounts it at /metrics
alongside the health endpoints (SPEC_FULL.md §4.10).
*/
package metrics
