// Package scheduler is the Scheduler component (C7): it registers one
// robfig/cron/v3 job per enabled FTP integration, runs a one-time startup
// recovery pass, and starts pkg/reconciler's independent health-check ticker
// alongside itself.
//
// # Cron mapping
//
// A Schedule is translated to a five-field cron expression:
//
//	hourly      -> "m * * * *"
//	everyNhours -> "m */N * * *"
//	daily       -> "m h * * *"
//	weekly      -> "m h * * d1,d2,..."  (defaults to Monday)
//	monthly     -> "m h D * *"
//
// m/h come from Schedule.TimeOfDay (default 02:00). A non-empty Timezone is
// expressed via the "CRON_TZ=<zone> " spec prefix robfig/cron recognizes, so
// each integration's schedule fires in its own configured zone without a
// separate *cron.Cron per timezone.
//
// # Startup recovery
//
// 30 seconds (STARTUP_DELAY) after Start, the scheduler lists every enabled
// integration and reconciles two kinds of leftover state from a prior
// process: one stuck mid-sync (Status == syncing) and one that has gone
// overdue (reconciler.IsSyncDue) while nothing was running. Stuck
// integrations have their running history record marked interrupted and
// their status reset to active; every candidate is then re-triggered with
// TriggeredByStartupRecovery, staggered by one second per integration.
//
//	sched := scheduler.New(primaryClient, hist, mgr, rec, cfg.StartupDelay, cfg.OverdueGrace)
//	if err := sched.Start(ctx); err != nil { ... }
//	defer sched.Stop()
package scheduler
