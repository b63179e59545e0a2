// Package reconciler implements the Scheduler's (C7) periodic health
// check: stuck-sync detection and overdue-sync recovery, run on its own
// ticker independent of the per-integration cron schedule.
package reconciler

import (
	"context"
	"time"

	"github.com/cuemby/turbosync/pkg/history"
	"github.com/cuemby/turbosync/pkg/log"
	"github.com/cuemby/turbosync/pkg/manager"
	"github.com/cuemby/turbosync/pkg/metrics"
	"github.com/cuemby/turbosync/pkg/primary"
	"github.com/cuemby/turbosync/pkg/types"
	"github.com/rs/zerolog"
)

// Reconciler runs the stuck-sync / overdue-sync health check on a
// ticker, separate from (but reusing the same detection rules as) the
// scheduler's one-time startup recovery.
type Reconciler struct {
	primary *primary.Client
	history *history.History
	manager *manager.Manager
	logger  zerolog.Logger

	stuckThreshold time.Duration
	overdueGrace   time.Duration
	interval       time.Duration

	stopCh chan struct{}
}

// New builds a Reconciler. interval is the health-check cadence
// (HEALTH_CHECK_INTERVAL, default 5m); stuckThreshold and overdueGrace
// mirror STUCK_SYNC_THRESHOLD (1h) and OVERDUE_GRACE (2h).
func New(primaryClient *primary.Client, hist *history.History, mgr *manager.Manager, interval, stuckThreshold, overdueGrace time.Duration) *Reconciler {
	return &Reconciler{
		primary:        primaryClient,
		history:        hist,
		manager:        mgr,
		logger:         log.WithComponent("reconciler"),
		stuckThreshold: stuckThreshold,
		overdueGrace:   overdueGrace,
		interval:       interval,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the health-check loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop ends the health-check loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")
	for {
		select {
		case <-ticker.C:
			r.Tick(context.Background())
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Tick runs one health-check cycle: stale-history cleanup, stuck-sync
// detection, and an overdue-sync scan. Each integration is handled
// independently; one failure does not stop the rest.
func (r *Reconciler) Tick(ctx context.Context) {
	if n, err := r.history.MarkStaleAsInterrupted(r.stuckThreshold); err != nil {
		r.logger.Error().Err(err).Msg("mark stale history failed")
	} else if n > 0 {
		r.logger.Info().Int("count", n).Msg("marked stale history records interrupted")
		metrics.StaleSyncsTotal.Add(float64(n))
	}

	if n, err := r.primary.MarkSyncRequestsStale(ctx, r.stuckThreshold); err != nil {
		r.logger.Error().Err(err).Msg("mark stale sync requests failed")
	} else if n > 0 {
		r.logger.Info().Int64("count", n).Msg("marked stale sync requests")
	}

	if n, err := r.history.Store().DeleteExpiredHistory(time.Now()); err != nil {
		r.logger.Error().Err(err).Msg("delete expired history failed")
	} else if n > 0 {
		r.logger.Info().Int("count", n).Msg("purged expired history records")
	}

	integrations, err := r.primary.ListEnabled(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("list integrations failed")
		return
	}

	now := time.Now()
	for _, integ := range integrations {
		r.reconcileOne(ctx, integ, now)
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, integ *types.Integration, now time.Time) {
	logger := log.WithIntegration(integ.ID)

	if integ.Status == types.IntegrationSyncing {
		running, err := r.history.RunningFor(integ.ID)
		if err != nil {
			logger.Error().Err(err).Msg("check running history failed")
			return
		}
		if running != nil && now.Sub(running.StartedAt) <= r.stuckThreshold {
			return // actively running and not yet stuck; leave it alone
		}

		logger.Warn().Msg("stuck sync detected, resetting to error")
		if err := r.primary.UpdateStatus(ctx, integ, types.IntegrationError); err != nil {
			logger.Error().Err(err).Msg("reset stuck integration status failed")
		}
		if running != nil {
			if err := r.history.MarkInterrupted(running, "Sync stale - marked as interrupted"); err != nil {
				logger.Error().Err(err).Msg("mark stuck history interrupted failed")
			}
		}
		metrics.StaleSyncsTotal.Inc()
		return
	}

	if IsSyncDue(integ, now, r.overdueGrace) {
		logger.Info().Msg("overdue sync detected, triggering")
		go func() {
			if err := r.manager.TriggerSync(context.Background(), integ.ID, types.TriggeredBySystem); err != nil {
				logger.Warn().Err(err).Msg("trigger overdue sync failed")
			}
		}()
	}
}

// IsSyncDue implements spec.md §4.7's isSyncDue: due when now is past
// lastSync + the schedule's interval + gracePeriod. A nil LastSync is
// always due; a manual-frequency schedule is never due.
func IsSyncDue(integ *types.Integration, now time.Time, gracePeriod time.Duration) bool {
	if integ.Schedule.Frequency == types.FrequencyManual {
		return false
	}
	if integ.LastSync == nil {
		return true
	}
	return now.After(integ.LastSync.Date.Add(scheduleInterval(integ.Schedule) + gracePeriod))
}

// scheduleInterval approximates an integration's configured cadence as a
// duration, for due-sync comparison purposes only (the cron expression
// itself, built in pkg/scheduler, is the source of truth for when a sync
// actually fires).
func scheduleInterval(s types.Schedule) time.Duration {
	switch s.Frequency {
	case types.FrequencyHourly:
		return time.Hour
	case types.FrequencyEveryN:
		n := s.EveryNHour
		if n <= 0 {
			n = 1
		}
		return time.Duration(n) * time.Hour
	case types.FrequencyDaily:
		return 24 * time.Hour
	case types.FrequencyWeekly:
		return 7 * 24 * time.Hour
	case types.FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
