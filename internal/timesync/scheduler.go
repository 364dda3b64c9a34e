package timesync

import (
	"sync"
	"time"
)

// SchedulerState is the scheduler's lifecycle state
type SchedulerState int

const (
	Stopped SchedulerState = iota
	Running
)

func (s SchedulerState) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// SyncScheduler fires a callback every interval until stopped. It holds no
// domain state. Ticks that arrive while the callback is still running are
// dropped; the next callback starts one interval after the previous one
// returned.
type SyncScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	done     chan struct{}
	state    SchedulerState
}

// NewSyncScheduler creates a stopped scheduler
func NewSyncScheduler(interval time.Duration, fn func()) *SyncScheduler {
	return &SyncScheduler{
		interval: interval,
		fn:       fn,
	}
}

// Start begins ticking; no-op when already running
func (s *SyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return
	}

	done := make(chan struct{})
	s.done = done
	s.state = Running

	go s.loop(done)
}

// Stop cancels the timer; no-op when already stopped. A callback already in
// progress runs to completion.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Stopped {
		return
	}

	close(s.done)
	s.done = nil
	s.state = Stopped
}

// State returns the current state
func (s *SyncScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Running reports whether the scheduler is ticking
func (s *SyncScheduler) Running() bool {
	return s.State() == Running
}

func (s *SyncScheduler) loop(done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// Stop may race with a tick; prefer the stop
			select {
			case <-done:
				return
			default:
			}
			s.fn()

			ticker.Reset(s.interval)
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}
