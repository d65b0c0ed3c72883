package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(maxCalls int, window time.Duration) (*Limiter, *time.Time, *[]time.Duration) {
	l := NewLimiter(maxCalls, window, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration
	l.now = func() time.Time { return now }
	l.sleep = func(d time.Duration) { slept = append(slept, d) }
	return l, &now, &slept
}

func TestUtilizationCountsWindowCalls(t *testing.T) {
	l, _, _ := newTestLimiter(15, time.Minute)

	assert.Equal(t, 0.0, l.Utilization())
	for i := 0; i < 6; i++ {
		l.AddCall()
	}
	assert.InDelta(t, 6.0/15.0*100, l.Utilization(), 1e-9)
}

func TestUtilizationEvictsOldCalls(t *testing.T) {
	l, now, _ := newTestLimiter(15, time.Minute)

	for i := 0; i < 5; i++ {
		l.AddCall()
	}
	require.InDelta(t, 5.0/15.0*100, l.Utilization(), 1e-9)

	*now = now.Add(time.Minute + time.Second)
	assert.Equal(t, 0.0, l.Utilization())
}

func TestWaitIfNeededUnderUtilizedDoesNotSleep(t *testing.T) {
	l, _, slept := newTestLimiter(15, time.Minute)

	l.AddCall()
	waited := l.WaitIfNeeded(false)

	assert.False(t, waited)
	assert.Empty(t, *slept)
}

func TestWaitIfNeededAtCapSleepsQuarterWindow(t *testing.T) {
	window := 400 * time.Millisecond
	l, _, slept := newTestLimiter(4, window)

	for i := 0; i < 4; i++ {
		l.AddCall()
	}
	waited := l.WaitIfNeeded(false)

	assert.True(t, waited)
	require.Len(t, *slept, 1)
	assert.GreaterOrEqual(t, (*slept)[0], window/4)
}

func TestWaitIfNeededForcedAlwaysSleeps(t *testing.T) {
	l, _, slept := newTestLimiter(15, time.Minute)

	waited := l.WaitIfNeeded(true)

	assert.True(t, waited)
	assert.Len(t, *slept, 1)
}

func TestSetBatchSizeAdjustsWait(t *testing.T) {
	l, _, _ := newTestLimiter(10, time.Second)
	perCall := time.Second / 10

	l.SetBatchSize(3)
	assert.Equal(t, perCall*8/10, l.currentWait)

	l.SetBatchSize(25)
	assert.Equal(t, perCall*12/10, l.currentWait)
}

func TestFailedFileTracking(t *testing.T) {
	l, _, _ := newTestLimiter(15, time.Minute)

	l.AddFailedFile("a.pdf")
	l.AddFailedFile("a.pdf")
	l.AddFailedFile("b.pdf")

	assert.True(t, l.HasFailedFile("a.pdf"))
	assert.False(t, l.HasFailedFile("c.pdf"))
	assert.Len(t, l.FailedFiles(), 2)

	l.ClearFailedFiles()
	assert.Empty(t, l.FailedFiles())
	assert.False(t, l.HasFailedFile("a.pdf"))
}

func TestAddCallBoundsQueue(t *testing.T) {
	l, _, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 50; i++ {
		l.AddCall()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.LessOrEqual(t, len(l.calls), 10)
}
