// Package timesync keeps an estimate of network time by periodically
// exchanging time-protocol packets with a rotating list of servers.
//
// An Engine owns all of its state: the server rotation, the bounded history
// ledger, the listener list and the periodic scheduler. At most one sync
// attempt runs at a time; attempts that would overlap are dropped.
//
// Usage:
//
//	cfg := timesync.DefaultConfig()
//	engine, err := timesync.New(cfg, ntp.NewUDPTransport(nil))
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//	now := engine.GetTime()
package timesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maximewewer/ntp-sync/internal/ntp"
	"github.com/maximewewer/ntp-sync/pkg/logger"
	"github.com/maximewewer/ntp-sync/pkg/mathutil"
)

// Config configures an Engine
type Config struct {
	Servers         []ntp.Server
	HistoryCapacity int
	SyncInterval    time.Duration
	SyncTimeout     time.Duration
	SyncOnCreation  bool
	AutoSync        bool
	StartOnline     bool

	// OnServerTime is called with the raw server timestamp after every
	// successful exchange
	OnServerTime func(time.Time)

	// OnDelta is called with the result of every successful SyncTime
	OnDelta func(DeltaResult)
}

// DefaultServers are the candidate servers used when none are configured
var DefaultServers = []ntp.Server{
	{Host: "time.google.com", Port: ntp.DefaultPort},
	{Host: "time.windows.com", Port: ntp.DefaultPort},
	{Host: "time.cloudflare.com", Port: ntp.DefaultPort},
	{Host: "0.pool.ntp.org", Port: ntp.DefaultPort},
	{Host: "1.pool.ntp.org", Port: ntp.DefaultPort},
}

const (
	DefaultHistoryCapacity = 10
	DefaultSyncInterval    = 5 * time.Minute
	DefaultSyncTimeout     = 10 * time.Second
)

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	servers := make([]ntp.Server, len(DefaultServers))
	copy(servers, DefaultServers)

	return Config{
		Servers:         servers,
		HistoryCapacity: DefaultHistoryCapacity,
		SyncInterval:    DefaultSyncInterval,
		SyncTimeout:     DefaultSyncTimeout,
		SyncOnCreation:  true,
		AutoSync:        true,
		StartOnline:     true,
	}
}

// DeltaResult is the outcome of GetDelta. Offline results carry no server.
type DeltaResult struct {
	OffsetMs int64      `json:"offset_ms"`
	Server   ntp.Server `json:"server"`
	Offline  bool       `json:"offline"`
}

// Recorder observes engine activity, typically to export metrics
type Recorder interface {
	// ObserveExchange is called after every network exchange; kind is empty on success
	ObserveExchange(server string, kind string, offsetMs int64, duration time.Duration)
	// ObserveLedger is called whenever the ledger or rotation changes
	ObserveLedger(currentServer string, consecutiveErrors int, inErrorState bool, estimatedOffsetMs int64)
	// ObserveOnline is called when the online flag changes
	ObserveOnline(online bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveExchange(string, string, int64, time.Duration) {}
func (nopRecorder) ObserveLedger(string, int, bool, int64)              {}
func (nopRecorder) ObserveOnline(bool)                                  {}

// Option customises an Engine
type Option func(*Engine)

// WithClock replaces the local clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRecorder attaches an activity recorder
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// Engine is the sync orchestrator
type Engine struct {
	cfg       Config
	transport ntp.Transport
	now       func() time.Time
	recorder  Recorder

	// mu guards ledger and rotation
	mu       sync.Mutex
	ledger   *HistoryLedger
	rotation *ServerRotation

	online   atomic.Bool
	inFlight atomic.Bool
	onlineMu sync.Mutex

	listeners listenerSet
	scheduler *SyncScheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an engine. With SyncOnCreation and StartOnline set, a first
// sync starts in the background; with AutoSync and StartOnline set, the
// periodic scheduler starts immediately.
func New(cfg Config, transport ntp.Transport, opts ...Option) (*Engine, error) {
	if len(cfg.Servers) == 0 {
		return nil, ErrNoServers
	}
	if cfg.HistoryCapacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	rotation := NewServerRotation(cfg.Servers)
	e := &Engine{
		cfg:       cfg,
		transport: transport,
		now:       time.Now,
		recorder:  nopRecorder{},
		rotation:  rotation,
		ledger:    NewHistoryLedger(cfg.HistoryCapacity, rotation.Current()),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.scheduler = NewSyncScheduler(cfg.SyncInterval, func() {
		e.SyncTime(e.ctx)
	})

	e.online.Store(cfg.StartOnline)
	e.recorder.ObserveOnline(cfg.StartOnline)

	logger.SafeInfo("timesync", "Sync engine created", map[string]interface{}{
		"servers":          len(cfg.Servers),
		"history_capacity": cfg.HistoryCapacity,
		"sync_interval":    cfg.SyncInterval.String(),
		"sync_timeout":     cfg.SyncTimeout.String(),
		"online":           cfg.StartOnline,
	})

	if cfg.SyncOnCreation && cfg.StartOnline {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.SyncTime(e.ctx)
		}()
	}

	if cfg.AutoSync && cfg.StartOnline {
		e.scheduler.Start()
	}

	return e, nil
}

// GetDelta performs one exchange with the current server. Offline engines
// return a zero offset without touching the network. On failure the
// rotation advances and a *SyncError names the server that was tried; the
// ledger is left for SyncTime to update.
func (e *Engine) GetDelta(ctx context.Context) (DeltaResult, error) {
	if !e.IsOnline() {
		return DeltaResult{Offline: true}, nil
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		return DeltaResult{}, ErrSyncInProgress
	}
	defer e.inFlight.Store(false)

	return e.getDelta(ctx)
}

func (e *Engine) getDelta(ctx context.Context) (DeltaResult, error) {
	e.mu.Lock()
	server := e.rotation.Current()
	e.mu.Unlock()

	start := time.Now()
	resp, err := e.transport.Exchange(ctx, server, ntp.BuildRequest(), e.cfg.SyncTimeout)

	var serverTime time.Time
	if err == nil {
		serverTime, err = ntp.ParseResponse(resp)
	}
	duration := time.Since(start)

	if err != nil {
		e.mu.Lock()
		e.rotation.AdvanceOnFailure()
		e.ledger.SetCurrentServer(e.rotation.Current())
		e.mu.Unlock()

		e.recorder.ObserveExchange(server.String(), ntp.ErrorKind(err), 0, duration)
		e.observeLedger()

		return DeltaResult{Server: server}, &SyncError{Cause: err, Server: server}
	}

	nowMs := e.now().UnixMilli()
	serverMs := serverTime.Round(time.Millisecond).UnixMilli()
	offsetMs := serverMs - nowMs

	e.mu.Lock()
	e.ledger.RecordSuccess(offsetMs, serverMs, nowMs)
	e.mu.Unlock()

	e.recorder.ObserveExchange(server.String(), "", offsetMs, duration)
	e.observeLedger()

	logger.Sync("exchange", server.String(), map[string]interface{}{
		"offset_ms": offsetMs,
		"duration":  duration.String(),
	})

	if e.cfg.OnServerTime != nil {
		e.cfg.OnServerTime(serverTime)
	}

	return DeltaResult{OffsetMs: offsetMs, Server: server}, nil
}

// SyncTime runs one attempt and absorbs any failure into the ledger. It
// returns true only on success, after listeners have been notified. Offline
// engines and attempts that would overlap one already in flight return
// false with no side effects.
func (e *Engine) SyncTime(ctx context.Context) bool {
	return e.Sync(ctx) == nil
}

// Sync is SyncTime with the reason for a false result: ErrOffline,
// ErrSyncInProgress when the attempt was dropped, or the *SyncError that
// was recorded in the ledger.
func (e *Engine) Sync(ctx context.Context) error {
	if !e.IsOnline() {
		return ErrOffline
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		logger.Debug("timesync", "Sync attempt dropped, previous attempt still in flight")
		return ErrSyncInProgress
	}
	defer e.inFlight.Store(false)

	result, err := e.getDelta(ctx)
	if err != nil {
		rec := e.errorRecord(err)

		e.mu.Lock()
		e.ledger.RecordFailure(rec)
		consecutive := e.ledger.state.CurrentConsecutiveErrorCount
		e.mu.Unlock()

		e.observeLedger()

		logger.SafeWarn("timesync", "Sync attempt failed", map[string]interface{}{
			"server":      rec.Server.String(),
			"kind":        rec.Kind,
			"error":       rec.Message,
			"consecutive": consecutive,
		})
		return err
	}

	e.listeners.notify(e.GetHistory)

	if e.cfg.OnDelta != nil {
		e.cfg.OnDelta(result)
	}

	return nil
}

// errorRecord builds the ledger entry for a failed attempt
func (e *Engine) errorRecord(err error) ErrorRecord {
	rec := ErrorRecord{
		Kind:        ntp.KindUnknown,
		Message:     err.Error(),
		TimestampMs: e.now().UnixMilli(),
	}

	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		rec.Kind = syncErr.Kind()
		rec.Server = syncErr.Server
		if syncErr.Cause != nil {
			rec.Message = syncErr.Cause.Error()
		}
	}
	return rec
}

// GetTime returns local time corrected by the estimated offset
func (e *Engine) GetTime() time.Time {
	return e.now().Add(mathutil.MillisToDuration(e.EstimatedOffsetMs()))
}

// GetTimeMs returns GetTime as Unix milliseconds
func (e *Engine) GetTimeMs() int64 {
	return e.now().UnixMilli() + e.EstimatedOffsetMs()
}

// EstimatedOffsetMs is the rounded mean of the retained offsets
func (e *Engine) EstimatedOffsetMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.EstimatedOffsetMs()
}

// GetHistory returns a copy of the history that later syncs cannot modify
func (e *Engine) GetHistory() HistoryState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.Snapshot()
}

// Statistics summarises the retained offsets
func (e *Engine) Statistics() Statistics {
	return CalculateStatistics(e.GetHistory().Deltas)
}

// Servers returns the configured server list in rotation order
func (e *Engine) Servers() []ntp.Server {
	return e.rotation.Servers()
}

// IsOnline reports whether the engine may use the network
func (e *Engine) IsOnline() bool {
	return e.online.Load()
}

// SetOnline toggles network use. Going online runs one sync right away and
// then starts the scheduler when AutoSync is set; going offline stops the
// scheduler first. Setting the current state is a no-op.
func (e *Engine) SetOnline(online bool) {
	e.onlineMu.Lock()
	defer e.onlineMu.Unlock()

	if online == e.IsOnline() {
		return
	}

	if online {
		e.online.Store(true)
		e.recorder.ObserveOnline(true)
		logger.Info("timesync", "Engine going online")

		e.SyncTime(e.ctx)
		if e.cfg.AutoSync {
			e.scheduler.Start()
		}
		return
	}

	e.scheduler.Stop()
	e.online.Store(false)
	e.recorder.ObserveOnline(false)
	logger.Info("timesync", "Engine going offline")
}

// Start starts the periodic scheduler
func (e *Engine) Start() {
	e.scheduler.Start()
}

// Stop stops the periodic scheduler
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// SchedulerRunning reports whether periodic syncs are active
func (e *Engine) SchedulerRunning() bool {
	return e.scheduler.Running()
}

// AddListener registers h to run after every successful SyncTime
func (e *Engine) AddListener(h HistoryHandler) ListenerID {
	return e.listeners.add(h)
}

// RemoveListener unregisters a listener; it reports whether id was known
func (e *Engine) RemoveListener(id ListenerID) bool {
	return e.listeners.remove(id)
}

// Close stops the scheduler, cancels in-flight background syncs and waits
// for them to return
func (e *Engine) Close() {
	e.scheduler.Stop()
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) observeLedger() {
	e.mu.Lock()
	state := e.ledger.state
	estimate := e.ledger.EstimatedOffsetMs()
	e.mu.Unlock()

	e.recorder.ObserveLedger(state.CurrentServer.String(), state.CurrentConsecutiveErrorCount, state.IsInErrorState, estimate)
}
