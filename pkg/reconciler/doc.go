/*
Package reconciler runs the Scheduler's (C7) periodic health check on its
own ticker, independent of per-integration cron schedules.

Each tick:

 1. Marks stale {pending, running} history records interrupted
    (history.MarkStaleAsInterrupted) and stale SyncRequests.
 2. For every enabled integration: if it is syncing and its running
    history record has outlived the stuck-sync threshold, resets the
    integration to error and marks that record interrupted.
 3. Otherwise, if the integration is overdue (IsSyncDue), triggers a new
    run via pkg/manager with TriggeredBySystem.

	rec := reconciler.New(primaryClient, hist, mgr, cfg.HealthCheckEvery, cfg.StuckSyncThreshold, cfg.OverdueGrace)
	rec.Start()
	defer rec.Stop()

Like the scheduler's startup recovery, IsSyncDue and the stuck-sync check
are stateless: every decision is re-derived from current integration and
history state, so a missed tick self-heals on the next one.
*/
package reconciler
