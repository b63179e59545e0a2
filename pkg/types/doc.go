/*
Package types defines the core data structures shared across turbosync:
the Integration configuration, the PartListing row a run produces, and
the SyncHistoryRecord / SyncRequest records that track a run's lifecycle.

# Core Types

Integration configuration:
  - Integration: one configured data source (FTP/API/Sheets), its schedule,
    and the rolling Status/LastSync/Stats the pipeline maintains on it.
  - Schedule: cron-like cadence (manual, hourly, every-N-hours, daily,
    weekly, monthly) plus timezone.
  - FTPConfig: remote host/credentials/path for a TransportFTP integration.

Catalog data:
  - PartListing: one normalized row, tagged with the integration and file
    it came from.

Run lifecycle:
  - SyncHistoryRecord: the durable per-run record — status, phase,
    per-file outcomes, counters, retention horizon.
  - SyncRequest: a queue entry for the optional out-of-process worker mode.
  - ProgressEvent: the payload shape passed to a run's progress callback.

# Usage

	integ := &types.Integration{
		ID:        uuid.New().String(),
		Name:      "acme-parts",
		Transport: types.TransportFTP,
		FTP: &types.FTPConfig{
			Host: "ftp.acme.example", Port: 21,
			Path: "/exports", Glob: "*.csv",
		},
		Schedule: types.Schedule{Frequency: types.FrequencyDaily, TimeOfDay: "02:00", Timezone: "UTC"},
		Enabled:  true,
		Status:   types.IntegrationActive,
	}

# Optimistic concurrency

Integration.Version is bumped on every Status/LastSync/Stats write; callers
in pkg/primary read-modify-write under a compare-and-swap on this field
rather than holding a lock, since updates come from a single pipeline run
at a time but must tolerate a concurrent manual status edit.

# State machine

SyncHistoryRecord.Status follows:

	pending → running → completed
	                   → failed
	                   → interrupted  (process died mid-run; recovered at startup)
	                   → cancelled

SyncStatus.Terminal reports whether a status is one of the last four.
*/
package types
