package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/turbosync/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetHistory(t *testing.T) {
	store := newTestStore(t)

	rec := &types.SyncHistoryRecord{
		ID:            "run-1",
		IntegrationID: "integ-1",
		Status:        types.SyncRunning,
		StartedAt:     time.Now(),
	}

	require.NoError(t, store.CreateHistory(rec))

	got, err := store.GetHistory("run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.IntegrationID, got.IntegrationID)
}

func TestGetHistoryNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetHistory("missing")
	assert.Error(t, err)
}

func TestUpdateHistoryIsUpsert(t *testing.T) {
	store := newTestStore(t)

	rec := &types.SyncHistoryRecord{ID: "run-1", IntegrationID: "integ-1", Status: types.SyncRunning}
	require.NoError(t, store.CreateHistory(rec))

	rec.Status = types.SyncCompleted
	require.NoError(t, store.UpdateHistory(rec))

	got, err := store.GetHistory("run-1")
	require.NoError(t, err)
	assert.Equal(t, types.SyncCompleted, got.Status)
}

func TestListHistoryByIntegrationOrdersMostRecentFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now()
	recs := []*types.SyncHistoryRecord{
		{ID: "run-old", IntegrationID: "integ-1", StartedAt: base.Add(-2 * time.Hour)},
		{ID: "run-new", IntegrationID: "integ-1", StartedAt: base},
		{ID: "run-mid", IntegrationID: "integ-1", StartedAt: base.Add(-1 * time.Hour)},
		{ID: "run-other", IntegrationID: "integ-2", StartedAt: base},
	}
	for _, r := range recs {
		require.NoError(t, store.CreateHistory(r))
	}

	got, err := store.ListHistoryByIntegration("integ-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"run-new", "run-mid", "run-old"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestListHistoryByIntegrationRespectsLimit(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()
	for i := 0; i < 5; i++ {
		rec := &types.SyncHistoryRecord{
			ID:            fmt.Sprintf("run-%d", i),
			IntegrationID: "integ-1",
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateHistory(rec))
	}

	got, err := store.ListHistoryByIntegration("integ-1", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListRunningHistory(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateHistory(&types.SyncHistoryRecord{ID: "run-1", Status: types.SyncRunning}))
	require.NoError(t, store.CreateHistory(&types.SyncHistoryRecord{ID: "run-2", Status: types.SyncCompleted}))

	running, err := store.ListRunningHistory()
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "run-1", running[0].ID)
}

func TestDeleteExpiredHistory(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	require.NoError(t, store.CreateHistory(&types.SyncHistoryRecord{ID: "expired", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.CreateHistory(&types.SyncHistoryRecord{ID: "alive", ExpiresAt: now.Add(time.Hour)}))

	removed, err := store.DeleteExpiredHistory(now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetHistory("expired")
	assert.Error(t, err)

	_, err = store.GetHistory("alive")
	assert.NoError(t, err)
}

func TestLastScheduled(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.GetLastScheduled("integ-1")
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, store.SetLastScheduled("integ-1", at))

	got, found, err := store.GetLastScheduled("integ-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Equal(at))
}
