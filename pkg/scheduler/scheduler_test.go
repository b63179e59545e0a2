package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/turbosync/pkg/types"
)

func TestCronExprHourlyUsesMinuteOnly(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyHourly, TimeOfDay: "14:30"})
	assert.Equal(t, "30 * * * *", expr)
}

func TestCronExprEveryNDefaultsToOne(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyEveryN})
	assert.Equal(t, "0 */1 * * *", expr)
}

func TestCronExprEveryN(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyEveryN, EveryNHour: 6})
	assert.Equal(t, "0 */6 * * *", expr)
}

func TestCronExprDailyUsesTimeOfDay(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyDaily, TimeOfDay: "03:15"})
	assert.Equal(t, "15 3 * * *", expr)
}

func TestCronExprDailyDefaultsWhenTimeOfDayEmpty(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyDaily})
	assert.Equal(t, "0 2 * * *", expr)
}

func TestCronExprWeeklyDefaultsToMonday(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyWeekly, TimeOfDay: "09:00"})
	assert.Equal(t, "0 9 * * 1", expr)
}

func TestCronExprWeeklyMultipleDays(t *testing.T) {
	expr := cronExpr(types.Schedule{
		Frequency:  types.FrequencyWeekly,
		TimeOfDay:  "09:00",
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	})
	assert.Equal(t, "0 9 * * 1,3,5", expr)
}

func TestCronExprMonthlyClampsOutOfRangeDay(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyMonthly, TimeOfDay: "00:00", DayOfMonth: 31})
	assert.Equal(t, "0 0 1 * *", expr)
}

func TestCronExprMonthlyUsesDayOfMonth(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyMonthly, TimeOfDay: "00:00", DayOfMonth: 15})
	assert.Equal(t, "0 0 15 * *", expr)
}

func TestCronExprAppliesTimezonePrefix(t *testing.T) {
	expr := cronExpr(types.Schedule{Frequency: types.FrequencyDaily, TimeOfDay: "02:00", Timezone: "Asia/Dubai"})
	assert.Equal(t, "CRON_TZ=Asia/Dubai 0 2 * * *", expr)
}

func TestParseHHMMValid(t *testing.T) {
	h, m, ok := parseHHMM("23:59")
	assert.True(t, ok)
	assert.Equal(t, 23, h)
	assert.Equal(t, 59, m)
}

func TestParseHHMMRejectsOutOfRange(t *testing.T) {
	_, _, ok := parseHHMM("24:00")
	assert.False(t, ok)
}

func TestParseHHMMRejectsMalformed(t *testing.T) {
	_, _, ok := parseHHMM("not-a-time")
	assert.False(t, ok)
}
