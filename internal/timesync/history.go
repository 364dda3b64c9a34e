package timesync

import (
	"github.com/maximewewer/ntp-sync/internal/ntp"
	"github.com/maximewewer/ntp-sync/pkg/mathutil"
)

// Delta is one successful observation. OffsetMs is server time minus local
// time at the moment the response was handled.
type Delta struct {
	OffsetMs     int64 `json:"offset_ms"`
	ServerTimeMs int64 `json:"server_time_ms"`
}

// ErrorRecord describes one failed attempt. Server is the server that was
// tried, not the one rotated to afterwards.
type ErrorRecord struct {
	Kind        string     `json:"kind"`
	Message     string     `json:"message"`
	Server      ntp.Server `json:"server"`
	TimestampMs int64      `json:"timestamp_ms"`
}

// HistoryState is a point-in-time copy of the ledger. LastSyncTimeMs and
// LastServerTimeMs are zero until the first success; LastError is nil until
// the first failure.
type HistoryState struct {
	CurrentConsecutiveErrorCount int           `json:"current_consecutive_error_count"`
	CurrentServer                ntp.Server    `json:"current_server"`
	Deltas                       []Delta       `json:"deltas"`
	Errors                       []ErrorRecord `json:"errors"`
	IsInErrorState               bool          `json:"is_in_error_state"`
	LastSyncTimeMs               int64         `json:"last_sync_time_ms"`
	LastServerTimeMs             int64         `json:"last_server_time_ms"`
	LastError                    *ErrorRecord  `json:"last_error"`
	LifetimeErrorCount           int           `json:"lifetime_error_count"`
	MaxConsecutiveErrorCount     int           `json:"max_consecutive_error_count"`
}

// ring is a fixed-capacity FIFO that evicts the oldest entry when full
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// items returns a fresh slice, oldest first
func (r *ring[T]) items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) len() int {
	return r.size
}

// HistoryLedger holds the bounded delta and error buffers plus counters.
// It is not safe for concurrent use; the engine serialises access.
type HistoryLedger struct {
	deltas *ring[Delta]
	errors *ring[ErrorRecord]
	state  HistoryState
}

// NewHistoryLedger creates an empty ledger; capacity must be positive
func NewHistoryLedger(capacity int, current ntp.Server) *HistoryLedger {
	return &HistoryLedger{
		deltas: newRing[Delta](capacity),
		errors: newRing[ErrorRecord](capacity),
		state:  HistoryState{CurrentServer: current},
	}
}

// RecordSuccess appends a delta and clears the error streak
func (l *HistoryLedger) RecordSuccess(offsetMs, serverTimeMs, nowMs int64) {
	l.deltas.push(Delta{OffsetMs: offsetMs, ServerTimeMs: serverTimeMs})
	l.state.LastSyncTimeMs = nowMs
	l.state.LastServerTimeMs = serverTimeMs
	l.state.CurrentConsecutiveErrorCount = 0
	l.state.IsInErrorState = false
}

// RecordFailure appends an error record and bumps every error counter
func (l *HistoryLedger) RecordFailure(rec ErrorRecord) {
	l.errors.push(rec)
	l.state.CurrentConsecutiveErrorCount++
	l.state.LifetimeErrorCount++
	l.state.MaxConsecutiveErrorCount = mathutil.MaxInt(l.state.MaxConsecutiveErrorCount, l.state.CurrentConsecutiveErrorCount)
	l.state.IsInErrorState = true

	last := rec
	l.state.LastError = &last
}

// SetCurrentServer mirrors the rotation cursor into the ledger
func (l *HistoryLedger) SetCurrentServer(s ntp.Server) {
	l.state.CurrentServer = s
}

// EstimatedOffsetMs is the mean retained offset, rounded half away from
// zero; 0 when nothing is retained
func (l *HistoryLedger) EstimatedOffsetMs() int64 {
	if l.deltas.len() == 0 {
		return 0
	}

	offsets := make([]int64, 0, l.deltas.len())
	for _, d := range l.deltas.items() {
		offsets = append(offsets, d.OffsetMs)
	}
	return mathutil.RoundedMean(offsets)
}

// Snapshot returns a deep copy that shares no memory with the ledger
func (l *HistoryLedger) Snapshot() HistoryState {
	s := l.state
	s.Deltas = l.deltas.items()
	s.Errors = l.errors.items()
	if l.state.LastError != nil {
		last := *l.state.LastError
		s.LastError = &last
	}
	return s
}
