package timesync

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerState_String(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "running", Running.String())
}

func TestSyncScheduler_Ticks(t *testing.T) {
	var calls atomic.Int32
	s := NewSyncScheduler(10*time.Millisecond, func() { calls.Add(1) })

	assert.False(t, s.Running())
	s.Start()
	defer s.Stop()

	assert.True(t, s.Running())
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestSyncScheduler_Stop(t *testing.T) {
	var calls atomic.Int32
	s := NewSyncScheduler(10*time.Millisecond, func() { calls.Add(1) })

	s.Start()
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, Stopped, s.State())
	// Allow a callback already past the stop check to finish
	time.Sleep(20 * time.Millisecond)
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestSyncScheduler_Idempotent(t *testing.T) {
	var calls atomic.Int32
	s := NewSyncScheduler(time.Hour, func() { calls.Add(1) })

	assert.NotPanics(t, func() {
		s.Stop()
		s.Start()
		s.Start()
		s.Stop()
		s.Stop()
	})
	assert.Equal(t, Stopped, s.State())
	assert.Zero(t, calls.Load(), "starting does not fire immediately")
}

func TestSyncScheduler_Restart(t *testing.T) {
	var calls atomic.Int32
	s := NewSyncScheduler(10*time.Millisecond, func() { calls.Add(1) })

	s.Start()
	s.Stop()
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestSyncScheduler_SlowCallbackDropsTicks(t *testing.T) {
	const interval = 50 * time.Millisecond

	var mu sync.Mutex
	var starts, ends []time.Time

	s := NewSyncScheduler(interval, func() {
		mu.Lock()
		starts = append(starts, time.Now())
		first := len(starts) == 1
		mu.Unlock()

		if first {
			time.Sleep(130 * time.Millisecond)
		}

		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
	})

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(starts) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	gap := starts[1].Sub(ends[0])
	assert.GreaterOrEqual(t, gap, interval-10*time.Millisecond, "tick fired during the slow callback ran immediately")
}
