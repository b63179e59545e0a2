// Package scheduler registers a per-integration cron job (C7) and runs the
// one-time startup recovery pass that reconciles state left behind by a
// previous process.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/turbosync/pkg/history"
	"github.com/cuemby/turbosync/pkg/log"
	"github.com/cuemby/turbosync/pkg/manager"
	"github.com/cuemby/turbosync/pkg/primary"
	"github.com/cuemby/turbosync/pkg/reconciler"
	"github.com/cuemby/turbosync/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler owns the cron registration for every enabled FTP integration
// and the reconciler's health-check ticker. It holds no cluster state of
// its own: every decision is re-derived from pkg/primary on each run.
type Scheduler struct {
	primary    *primary.Client
	history    *history.History
	manager    *manager.Manager
	reconciler *reconciler.Reconciler

	cron         *cron.Cron
	logger       zerolog.Logger
	startupWait  time.Duration
	overdueGrace time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	stopCh  chan struct{}
}

// New builds a Scheduler. startupDelay controls how long after Start the
// recovery pass runs (STARTUP_DELAY, default 30s); overdueGrace mirrors the
// reconciler's own OVERDUE_GRACE so the two "is this due" checks agree.
func New(primaryClient *primary.Client, hist *history.History, mgr *manager.Manager, rec *reconciler.Reconciler, startupDelay, overdueGrace time.Duration) *Scheduler {
	return &Scheduler{
		primary:      primaryClient,
		history:      hist,
		manager:      mgr,
		reconciler:   rec,
		cron:         cron.New(),
		logger:       log.WithComponent("scheduler"),
		startupWait:  startupDelay,
		overdueGrace: overdueGrace,
		entries:      make(map[string]cron.EntryID),
		stopCh:       make(chan struct{}),
	}
}

// Start loads every enabled integration, registers its cron job, starts the
// reconciler's health-check ticker, and schedules the one-time startup
// recovery pass after startupWait.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return fmt.Errorf("scheduler: initial load failed: %w", err)
	}

	s.cron.Start()
	s.reconciler.Start()

	go func() {
		select {
		case <-time.After(s.startupWait):
			s.runStartupRecovery(context.Background())
		case <-s.stopCh:
		}
	}()

	s.logger.Info().Int("jobs", len(s.entries)).Msg("scheduler started")
	return nil
}

// Stop ends the cron scheduler, the reconciler, and cancels a pending
// startup-recovery wait if it hasn't fired yet.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.cron.Stop().Done()
	s.reconciler.Stop()
	s.logger.Info().Msg("scheduler stopped")
}

// reload (re-)registers a cron job for every enabled, non-manual FTP
// integration. It is safe to call more than once: existing entries are
// removed before re-adding, so a changed schedule takes effect on the next
// call without restarting the process.
func (s *Scheduler) reload(ctx context.Context) error {
	integrations, err := s.primary.ListEnabled(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	for _, integ := range integrations {
		if integ.Transport != types.TransportFTP {
			continue // scheduler only drives the FTP-backed pipeline
		}
		if integ.Schedule.Frequency == types.FrequencyManual {
			continue
		}

		expr := cronExpr(integ.Schedule)
		integ := integ
		entryID, err := s.cron.AddFunc(expr, func() {
			logger := log.WithIntegration(integ.ID)
			if err := s.history.Store().SetLastScheduled(integ.ID, time.Now()); err != nil {
				logger.Warn().Err(err).Msg("record last-scheduled fire failed")
			}
			if err := s.manager.TriggerSync(context.Background(), integ.ID, types.TriggeredByScheduler); err != nil {
				logger.Warn().Err(err).Msg("scheduled trigger failed")
			}
		})
		if err != nil {
			s.logger.Error().Err(err).Str("integration", integ.ID).Str("cron", expr).Msg("register cron job failed")
			continue
		}
		s.entries[integ.ID] = entryID
	}
	return nil
}

// runStartupRecovery resets integrations left mid-sync by a prior process
// and re-triggers any that are now overdue, staggered by one second so a
// restart with many integrations doesn't open every FTP connection at once.
func (s *Scheduler) runStartupRecovery(ctx context.Context) {
	integrations, err := s.primary.ListEnabled(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("startup recovery: list integrations failed")
		return
	}

	now := time.Now()
	var candidates []*types.Integration
	for _, integ := range integrations {
		if integ.Status == types.IntegrationSyncing || reconciler.IsSyncDue(integ, now, s.overdueGrace) {
			candidates = append(candidates, integ)
		}
	}
	if len(candidates) == 0 {
		return
	}

	s.logger.Info().Int("count", len(candidates)).Msg("startup recovery: reconciling candidates")
	for i, integ := range candidates {
		logger := log.WithIntegration(integ.ID)

		if last, found, err := s.history.Store().GetLastScheduled(integ.ID); err != nil {
			logger.Warn().Err(err).Msg("startup recovery: read last-scheduled failed")
		} else if found {
			logger.Info().Time("lastScheduled", last).Msg("startup recovery: cron entry last fired")
		}

		if integ.Status == types.IntegrationSyncing {
			if running, err := s.history.RunningFor(integ.ID); err == nil && running != nil {
				if err := s.history.MarkInterrupted(running, "Process restarted mid-sync"); err != nil {
					logger.Error().Err(err).Msg("startup recovery: mark interrupted failed")
				}
			}
			if err := s.primary.UpdateStatus(ctx, integ, types.IntegrationActive); err != nil {
				logger.Error().Err(err).Msg("startup recovery: reset status failed")
			}
		}

		if i > 0 {
			time.Sleep(time.Second)
		}
		if err := s.manager.TriggerSync(ctx, integ.ID, types.TriggeredByStartupRecovery); err != nil {
			logger.Warn().Err(err).Msg("startup recovery: trigger failed")
		}
	}
}

// cronExpr maps a Schedule to a robfig/cron/v3 expression, per-job timezone
// expressed via the "CRON_TZ=" spec prefix the library recognizes.
func cronExpr(s types.Schedule) string {
	hour, minute := 2, 0
	if s.TimeOfDay != "" {
		if h, m, ok := parseHHMM(s.TimeOfDay); ok {
			hour, minute = h, m
		}
	}

	var spec string
	switch s.Frequency {
	case types.FrequencyHourly:
		spec = fmt.Sprintf("%d * * * *", minute)
	case types.FrequencyEveryN:
		n := s.EveryNHour
		if n <= 0 {
			n = 1
		}
		spec = fmt.Sprintf("%d */%d * * *", minute, n)
	case types.FrequencyDaily:
		spec = fmt.Sprintf("%d %d * * *", minute, hour)
	case types.FrequencyWeekly:
		days := s.DaysOfWeek
		if len(days) == 0 {
			days = []time.Weekday{time.Monday}
		}
		spec = fmt.Sprintf("%d %d * * %s", minute, hour, weekdayList(days))
	case types.FrequencyMonthly:
		day := s.DayOfMonth
		if day < 1 || day > 28 {
			day = 1
		}
		spec = fmt.Sprintf("%d %d %d * *", minute, hour, day)
	default:
		spec = fmt.Sprintf("%d %d * * *", minute, hour)
	}

	if s.Timezone != "" {
		return "CRON_TZ=" + s.Timezone + " " + spec
	}
	return spec
}

func weekdayList(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = fmt.Sprintf("%d", int(d))
	}
	return strings.Join(parts, ",")
}

func parseHHMM(s string) (hour, minute int, ok bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &hour); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &minute); err != nil {
		return 0, 0, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
