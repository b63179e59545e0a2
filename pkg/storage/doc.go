/*
Package storage provides BoltDB-backed persistence for turbosync's embedded
state: the durable sync history ledger and the per-integration
last-scheduled bookkeeping the scheduler consults at startup.

This is deliberately not where catalog data lives — PartListing rows live
in the primary/search stores (pkg/primary, pkg/search). BoltStore only
holds the small amount of state turbosync needs to survive a restart
without losing track of what it was doing.

# Buckets

	history        SyncHistoryRecord, keyed by run ID
	last_schedule  time.Time, keyed by integration ID

# Transaction model

Reads use db.View, writes use db.Update, matching bbolt's single-writer
MVCC model. Create and Update are both upserts (same Put call) — there is
no separate existence check, since a run's history record is written
once at start and repeatedly thereafter as it progresses.

# Usage

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	store.CreateHistory(rec)
	running, err := store.ListRunningHistory()

# Retention

DeleteExpiredHistory is called periodically (see pkg/reconciler's health
tick) to purge records whose ExpiresAt has passed, bounding the file's
growth under the configured retention window.
*/
package storage
