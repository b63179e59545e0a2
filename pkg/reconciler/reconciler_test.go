package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/turbosync/pkg/types"
)

func TestIsSyncDueNilLastSync(t *testing.T) {
	integ := &types.Integration{Schedule: types.Schedule{Frequency: types.FrequencyDaily}}
	assert.True(t, IsSyncDue(integ, time.Now(), 2*time.Hour))
}

func TestIsSyncDueManualNeverDue(t *testing.T) {
	integ := &types.Integration{
		Schedule: types.Schedule{Frequency: types.FrequencyManual},
		LastSync: nil,
	}
	assert.False(t, IsSyncDue(integ, time.Now(), 2*time.Hour))
}

func TestIsSyncDueWithinGraceIsNotDue(t *testing.T) {
	now := time.Now()
	integ := &types.Integration{
		Schedule: types.Schedule{Frequency: types.FrequencyDaily},
		LastSync: &types.LastSync{Date: now.Add(-25 * time.Hour)}, // 1h past the 24h interval
	}
	assert.False(t, IsSyncDue(integ, now, 2*time.Hour)) // still within the 2h grace
}

func TestIsSyncDuePastGraceIsDue(t *testing.T) {
	now := time.Now()
	integ := &types.Integration{
		Schedule: types.Schedule{Frequency: types.FrequencyDaily},
		LastSync: &types.LastSync{Date: now.Add(-27 * time.Hour)}, // 3h past the 24h interval
	}
	assert.True(t, IsSyncDue(integ, now, 2*time.Hour))
}

func TestScheduleIntervalEveryNDefaultsToOneHour(t *testing.T) {
	assert.Equal(t, time.Hour, scheduleInterval(types.Schedule{Frequency: types.FrequencyEveryN}))
}

func TestScheduleIntervalEveryN(t *testing.T) {
	assert.Equal(t, 6*time.Hour, scheduleInterval(types.Schedule{Frequency: types.FrequencyEveryN, EveryNHour: 6}))
}

func TestScheduleIntervalWeekly(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, scheduleInterval(types.Schedule{Frequency: types.FrequencyWeekly}))
}
