/*
Package manager is the single entry point the scheduler and CLI call to
start a sync: TriggerSync resolves the integration, guards against a
second concurrent run, and either executes pipeline.Engine.RunOnce
in-process or enqueues a SyncRequest for an out-of-process worker
(SYNC_USE_WORKER).

	mgr := manager.New(primaryClient, hist, engine, cfg.UseWorker, cfg.HistoryRetention)
	go func() {
		if err := mgr.TriggerSync(ctx, integrationID, types.TriggeredByScheduler); err != nil {
			log.Logger.Warn().Err(err).Msg("trigger sync failed")
		}
	}()

TriggerSync is synchronous; callers that want fire-and-forget dispatch
(the scheduler's cron callback, for instance) run it in its own
goroutine.
*/
package manager
