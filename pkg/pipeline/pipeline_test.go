package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/turbosync/pkg/types"
)

func TestThrottledReporterDropsWithinInterval(t *testing.T) {
	var got []types.ProgressEvent
	r := newThrottledReporter(50*time.Millisecond, func(ev types.ProgressEvent) {
		got = append(got, ev)
	})

	r.emit(types.ProgressEvent{Message: "first"})
	r.emit(types.ProgressEvent{Message: "dropped"})
	r.emit(types.ProgressEvent{Message: "also dropped"})

	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Message)
}

func TestThrottledReporterForcePassesThrough(t *testing.T) {
	var got []types.ProgressEvent
	r := newThrottledReporter(time.Hour, func(ev types.ProgressEvent) {
		got = append(got, ev)
	})

	r.emit(types.ProgressEvent{Message: "first"})
	r.emit(types.ProgressEvent{Message: "forced", Force: true})

	require.Len(t, got, 2)
	assert.Equal(t, "forced", got[1].Message)
}

func TestThrottledReporterAllowsAfterInterval(t *testing.T) {
	var got []types.ProgressEvent
	r := newThrottledReporter(10*time.Millisecond, func(ev types.ProgressEvent) {
		got = append(got, ev)
	})

	r.emit(types.ProgressEvent{Message: "first"})
	time.Sleep(20 * time.Millisecond)
	r.emit(types.ProgressEvent{Message: "second"})

	require.Len(t, got, 2)
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 2*time.Second, opts.ProgressThrottle)
	assert.Equal(t, 4, opts.MongoConcurrent)
	assert.Equal(t, 8, opts.ESBulkConcurrent)
	assert.Equal(t, 90*24*time.Hour, opts.HistoryRetention)
}
