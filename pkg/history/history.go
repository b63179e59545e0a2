// Package history implements the sync-history state machine (C6): durable
// per-run lifecycle records, progress coalescing, stale-run recovery, and
// the read-side queries the scheduler and CLI use to inspect past runs.
//
// The store owns every status transition; callers (the pipeline engine,
// the scheduler) report what happened but never fabricate a transition the
// store did not observe.
package history

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/turbosync/pkg/storage"
	"github.com/cuemby/turbosync/pkg/types"
)

// staleSummary is the error summary MarkStaleAsInterrupted records. The age
// at which a non-terminal record counts as stale is not hardcoded here: it
// is passed in by the caller (pkg/config.StuckSyncThreshold).
const staleSummary = "Sync stale - marked as interrupted"

// History is the sync-history state machine, backed by a storage.Store.
type History struct {
	store storage.Store
}

// New creates a History backed by store.
func New(store storage.Store) *History {
	return &History{store: store}
}

// Store returns the underlying storage.Store, for callers (the metrics
// collector) that need to poll it directly without opening a second
// connection to the same BoltDB file.
func (h *History) Store() storage.Store {
	return h.store
}

// Create starts a new history record in pending/queued for integration,
// attributed to triggeredBy. The record's ID is generated here and is also
// the run ID threaded through the pipeline and progress events.
func (h *History) Create(integrationID, integrationName string, kind types.TransportKind, triggeredBy types.TriggerSource, retention time.Duration) (*types.SyncHistoryRecord, error) {
	now := time.Now()
	rec := &types.SyncHistoryRecord{
		ID:              uuid.NewString(),
		IntegrationID:   integrationID,
		IntegrationName: integrationName,
		IntegrationKind: kind,
		Status:          types.SyncPending,
		Phase:           types.PhaseQueued,
		TriggeredBy:     triggeredBy,
		StartedAt:       now,
		ExpiresAt:       now.Add(retention),
	}
	if err := h.store.CreateHistory(rec); err != nil {
		return nil, fmt.Errorf("history: create: %w", err)
	}
	return rec, nil
}

// MarkRunning transitions record to running/connecting.
func (h *History) MarkRunning(rec *types.SyncHistoryRecord) error {
	rec.Status = types.SyncRunning
	rec.Phase = types.PhaseConnecting
	return h.save(rec)
}

// MarkCompleted finalizes record as completed with the final run stats.
func (h *History) MarkCompleted(rec *types.SyncHistoryRecord, stats types.RunStats) error {
	rec.Status = types.SyncCompleted
	rec.Phase = types.PhaseDone
	rec.Stats = stats
	rec.CompletedAt = time.Now()
	rec.DurationMs = rec.Duration().Milliseconds()
	return h.save(rec)
}

// MarkFailed finalizes record as failed, recording err in the error log and
// summary.
func (h *History) MarkFailed(rec *types.SyncHistoryRecord, cause error) error {
	rec.Status = types.SyncFailed
	rec.Phase = types.PhaseDone
	rec.CompletedAt = time.Now()
	rec.DurationMs = rec.Duration().Milliseconds()
	if cause != nil {
		rec.Errors = append(rec.Errors, cause.Error())
		rec.ErrorSummary = cause.Error()
	}
	return h.save(rec)
}

// MarkInterrupted finalizes record as interrupted with reason as the
// summary, used by both external-signal cleanup and startup/health-tick
// recovery.
func (h *History) MarkInterrupted(rec *types.SyncHistoryRecord, reason string) error {
	rec.Status = types.SyncInterrupted
	rec.Phase = types.PhaseDone
	rec.CompletedAt = time.Now()
	rec.DurationMs = rec.Duration().Milliseconds()
	rec.ErrorSummary = reason
	return h.save(rec)
}

// UpdateProgress coalesces a throttled progress emission from the engine
// onto the durable record: phase and counters advance, but the top-level
// Status is left untouched (only MarkRunning/MarkCompleted/MarkFailed/
// MarkInterrupted may change it) so the engine cannot fabricate a
// transition it did not go through the dedicated calls for.
func (h *History) UpdateProgress(rec *types.SyncHistoryRecord, partial types.ProgressEvent) error {
	rec.Phase = partial.Phase
	rec.Stats.Processed = partial.RecordsProcessed
	rec.Stats.Inserted = partial.RecordsInserted
	return h.save(rec)
}

// MarkStaleAsInterrupted atomically transitions every {pending, running}
// record older than threshold to interrupted. It is idempotent: once no
// stale records remain, re-running it changes nothing.
func (h *History) MarkStaleAsInterrupted(threshold time.Duration) (int, error) {
	running, err := h.store.ListRunningHistory()
	if err != nil {
		return 0, fmt.Errorf("history: mark stale: %w", err)
	}

	cutoff := time.Now().Add(-threshold)
	count := 0
	for _, rec := range running {
		if rec.Status.Terminal() {
			continue
		}
		if rec.StartedAt.After(cutoff) {
			continue
		}
		if err := h.MarkInterrupted(rec, staleSummary); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// RecentByIntegration returns up to limit history records for integrationID,
// most recent first. limit <= 0 means no limit.
func (h *History) RecentByIntegration(integrationID string, limit int) ([]*types.SyncHistoryRecord, error) {
	recs, err := h.store.ListHistoryByIntegration(integrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent by integration: %w", err)
	}
	return recs, nil
}

// RunningFor returns the unique non-terminal record for integrationID, if
// any. At most one such record should exist per integration at a time.
func (h *History) RunningFor(integrationID string) (*types.SyncHistoryRecord, error) {
	running, err := h.store.ListRunningHistory()
	if err != nil {
		return nil, fmt.Errorf("history: running for: %w", err)
	}
	for _, rec := range running {
		if rec.IntegrationID == integrationID {
			return rec, nil
		}
	}
	return nil, nil
}

// Stats aggregates history for integrationID over the last days, producing
// {count, avgDuration, totalRecords} per status. Non-terminal records are
// counted too; their AvgDuration is zero.
type Stats struct {
	Status       types.SyncStatus
	Count        int
	AvgDuration  time.Duration
	TotalRecords int64
}

// Stats aggregates by status across the last `days` days of history.
func (h *History) Stats(integrationID string, days int) ([]Stats, error) {
	recs, err := h.store.ListHistoryByIntegration(integrationID, 0)
	if err != nil {
		return nil, fmt.Errorf("history: stats: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	byStatus := make(map[types.SyncStatus]*Stats)
	var order []types.SyncStatus

	for _, rec := range recs {
		if rec.StartedAt.Before(cutoff) {
			continue
		}
		s, ok := byStatus[rec.Status]
		if !ok {
			s = &Stats{Status: rec.Status}
			byStatus[rec.Status] = s
			order = append(order, rec.Status)
		}
		s.Count++
		s.TotalRecords += rec.Stats.Processed
		if rec.Status.Terminal() {
			s.AvgDuration += rec.Duration()
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]Stats, 0, len(order))
	for _, status := range order {
		s := *byStatus[status]
		if s.Count > 0 {
			s.AvgDuration /= time.Duration(s.Count)
		}
		out = append(out, s)
	}
	return out, nil
}

func (h *History) save(rec *types.SyncHistoryRecord) error {
	if err := h.store.UpdateHistory(rec); err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}
