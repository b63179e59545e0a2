package history

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/turbosync/pkg/storage"
	"github.com/cuemby/turbosync/pkg/types"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func TestCreateStartsPending(t *testing.T) {
	h := newTestHistory(t)

	rec, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByScheduler, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, types.SyncPending, rec.Status)
	assert.Equal(t, types.PhaseQueued, rec.Phase)
	assert.NotEmpty(t, rec.ID)
	assert.True(t, rec.ExpiresAt.After(rec.StartedAt))
}

func TestMarkRunningThenCompleted(t *testing.T) {
	h := newTestHistory(t)

	rec, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByManual, time.Hour)
	require.NoError(t, err)

	require.NoError(t, h.MarkRunning(rec))
	assert.Equal(t, types.SyncRunning, rec.Status)

	stats := types.RunStats{Total: 100, Processed: 100, Inserted: 98, Skipped: 2}
	require.NoError(t, h.MarkCompleted(rec, stats))

	assert.Equal(t, types.SyncCompleted, rec.Status)
	assert.Equal(t, types.PhaseDone, rec.Phase)
	assert.True(t, rec.CompletedAt.After(rec.StartedAt) || rec.CompletedAt.Equal(rec.StartedAt))
	assert.Equal(t, stats, rec.Stats)
}

func TestMarkFailedRecordsErrorSummary(t *testing.T) {
	h := newTestHistory(t)

	rec, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByManual, time.Hour)
	require.NoError(t, err)

	require.NoError(t, h.MarkFailed(rec, errors.New("ftp listing failed")))

	assert.Equal(t, types.SyncFailed, rec.Status)
	assert.Equal(t, "ftp listing failed", rec.ErrorSummary)
	assert.Contains(t, rec.Errors, "ftp listing failed")
}

func TestUpdateProgressDoesNotChangeStatus(t *testing.T) {
	h := newTestHistory(t)

	rec, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByManual, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.MarkRunning(rec))

	require.NoError(t, h.UpdateProgress(rec, types.ProgressEvent{
		Phase:            types.PhasePipeline,
		RecordsProcessed: 500,
		RecordsInserted:  480,
	}))

	assert.Equal(t, types.SyncRunning, rec.Status)
	assert.Equal(t, types.PhasePipeline, rec.Phase)
	assert.Equal(t, int64(500), rec.Stats.Processed)
	assert.Equal(t, int64(480), rec.Stats.Inserted)
}

func TestMarkStaleAsInterrupted(t *testing.T) {
	h := newTestHistory(t)

	stale, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByScheduler, time.Hour)
	require.NoError(t, err)
	stale.StartedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, h.MarkRunning(stale))

	fresh, err := h.Create("integ-2", "Beta Parts", types.TransportFTP, types.TriggeredByScheduler, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.MarkRunning(fresh))

	count, err := h.MarkStaleAsInterrupted(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := h.RunningFor("integ-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = h.RunningFor("integ-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.SyncRunning, got.Status)

	// idempotent: re-running changes nothing once no stale records remain
	count, err = h.MarkStaleAsInterrupted(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRecentByIntegrationOrdering(t *testing.T) {
	h := newTestHistory(t)

	first, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByManual, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.MarkCompleted(first, types.RunStats{}))

	second, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByManual, time.Hour)
	require.NoError(t, err)
	second.StartedAt = first.StartedAt.Add(time.Minute)
	require.NoError(t, h.MarkCompleted(second, types.RunStats{}))

	recs, err := h.RecentByIntegration("integ-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second.ID, recs[0].ID)
}

func TestStatsAggregatesByStatus(t *testing.T) {
	h := newTestHistory(t)

	ok, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByManual, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.MarkCompleted(ok, types.RunStats{Processed: 1000}))

	failed, err := h.Create("integ-1", "Acme Parts", types.TransportFTP, types.TriggeredByManual, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.MarkFailed(failed, errors.New("boom")))

	stats, err := h.Stats("integ-1", 30)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	var completed, failedStats *Stats
	for i := range stats {
		switch stats[i].Status {
		case types.SyncCompleted:
			completed = &stats[i]
		case types.SyncFailed:
			failedStats = &stats[i]
		}
	}
	require.NotNil(t, completed)
	require.NotNil(t, failedStats)
	assert.Equal(t, 1, completed.Count)
	assert.Equal(t, int64(1000), completed.TotalRecords)
	assert.Equal(t, 1, failedStats.Count)
}
