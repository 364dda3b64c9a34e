package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/maximewewer/ntp-sync/internal/config"
	"github.com/maximewewer/ntp-sync/internal/ntp"
	"github.com/maximewewer/ntp-sync/internal/timesync"
	"github.com/maximewewer/ntp-sync/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// SyncEngine is the part of the sync engine the HTTP API drives
type SyncEngine interface {
	GetTime() time.Time
	EstimatedOffsetMs() int64
	GetHistory() timesync.HistoryState
	Statistics() timesync.Statistics
	Sync(ctx context.Context) error
	SetOnline(online bool)
	IsOnline() bool
	Servers() []ntp.Server
	SchedulerRunning() bool
}

// ServerProber runs full-protocol diagnostics against a list of servers
type ServerProber interface {
	ProbeAll(ctx context.Context, servers []ntp.Server) ([]*ntp.ProbeResult, error)
}

// BreakerStates reports per-server circuit breaker states
type BreakerStates interface {
	States() map[string]gobreaker.State
}

// Handlers contains HTTP request handlers
type Handlers struct {
	config   *config.Config
	engine   SyncEngine
	prober   ServerProber
	breakers BreakerStates
	registry *prometheus.Registry
}

// NewHandlers creates a new handlers instance. prober may be nil.
func NewHandlers(cfg *config.Config, engine SyncEngine, prober ServerProber, registry *prometheus.Registry) *Handlers {
	return &Handlers{
		config:   cfg,
		engine:   engine,
		prober:   prober,
		registry: registry,
	}
}

// TimeResponse is the body of GET /time
type TimeResponse struct {
	Time     time.Time `json:"time"`
	TimeMs   int64     `json:"time_ms"`
	OffsetMs int64     `json:"offset_ms"`
	Online   bool      `json:"online"`
}

// HistoryResponse is the body of GET /history
type HistoryResponse struct {
	History    timesync.HistoryState `json:"history"`
	Statistics timesync.Statistics   `json:"statistics"`
}

// SyncResponse is the body of POST /sync
type SyncResponse struct {
	Success   bool                  `json:"success"`
	OffsetMs  int64                 `json:"offset_ms"`
	Server    ntp.Server            `json:"server"`
	LastError *timesync.ErrorRecord `json:"last_error,omitempty"`
}

// ServersResponse is the body of GET /servers
type ServersResponse struct {
	Servers []ntp.Server       `json:"servers"`
	Current ntp.Server         `json:"current"`
	Probes  []*ntp.ProbeResult `json:"probes,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	Online            bool   `json:"online"`
	SchedulerRunning  bool   `json:"scheduler_running"`
	ConsecutiveErrors int    `json:"consecutive_errors"`
	LastSyncTimeMs    int64  `json:"last_sync_time_ms"`

	CircuitBreakers map[string]string `json:"circuit_breakers,omitempty"`
}

// TimeHandler returns the corrected current time
func (h *Handlers) TimeHandler(w http.ResponseWriter, r *http.Request) {
	offset := h.engine.EstimatedOffsetMs()
	now := h.engine.GetTime()

	writeJSON(w, http.StatusOK, TimeResponse{
		Time:     now,
		TimeMs:   now.UnixMilli(),
		OffsetMs: offset,
		Online:   h.engine.IsOnline(),
	})
}

// HistoryHandler returns the ledger snapshot and offset statistics
func (h *Handlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	history := h.engine.GetHistory()

	writeJSON(w, http.StatusOK, HistoryResponse{
		History:    history,
		Statistics: timesync.CalculateStatistics(history.Deltas),
	})
}

// SyncHandler runs one sync attempt. A failed attempt answers 502 with the
// recorded error; an offline engine or an attempt dropped because another
// is in flight answers 409.
func (h *Handlers) SyncHandler(w http.ResponseWriter, r *http.Request) {
	err := h.engine.Sync(r.Context())
	switch {
	case errors.Is(err, timesync.ErrOffline):
		writeError(w, http.StatusConflict, "engine is offline")
		return
	case errors.Is(err, timesync.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync attempt already in progress")
		return
	}

	history := h.engine.GetHistory()

	if err == nil {
		resp := SyncResponse{Success: true, Server: history.CurrentServer}
		if n := len(history.Deltas); n > 0 {
			resp.OffsetMs = history.Deltas[n-1].OffsetMs
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// rotation has already moved on; report the server that failed
	resp := SyncResponse{LastError: history.LastError}
	var syncErr *timesync.SyncError
	switch {
	case errors.As(err, &syncErr):
		resp.Server = syncErr.Server
	case history.LastError != nil:
		resp.Server = history.LastError.Server
	}
	writeJSON(w, http.StatusBadGateway, resp)
}

// OnlineHandler switches the engine online or offline from ?state=
func (h *Handlers) OnlineHandler(w http.ResponseWriter, r *http.Request) {
	state, err := strconv.ParseBool(r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "state must be true or false")
		return
	}

	h.engine.SetOnline(state)

	writeJSON(w, http.StatusOK, map[string]bool{"online": h.engine.IsOnline()})
}

// ServersHandler lists the rotation; ?probe=true adds live diagnostics
func (h *Handlers) ServersHandler(w http.ResponseWriter, r *http.Request) {
	servers := h.engine.Servers()
	resp := ServersResponse{
		Servers: servers,
		Current: h.engine.GetHistory().CurrentServer,
	}

	if probe, _ := strconv.ParseBool(r.URL.Query().Get("probe")); probe {
		if h.prober == nil {
			writeError(w, http.StatusNotImplemented, "probing is not enabled")
			return
		}
		results, err := h.prober.ProbeAll(r.Context(), servers)
		if err != nil {
			logger.Error("server", "Probe failed", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		resp.Probes = results
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthHandler returns 200 while healthy or offline and 503 while the last
// sync attempt failed
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	history := h.engine.GetHistory()
	online := h.engine.IsOnline()

	resp := HealthResponse{
		Status:            "healthy",
		Service:           "ntp-sync",
		Online:            online,
		SchedulerRunning:  h.engine.SchedulerRunning(),
		ConsecutiveErrors: history.CurrentConsecutiveErrorCount,
		LastSyncTimeMs:    history.LastSyncTimeMs,
	}

	if h.breakers != nil {
		states := h.breakers.States()
		if len(states) > 0 {
			resp.CircuitBreakers = make(map[string]string, len(states))
			for server, state := range states {
				resp.CircuitBreakers[server] = state.String()
			}
		}
	}

	status := http.StatusOK
	switch {
	case !online:
		resp.Status = "offline"
	case history.IsInErrorState:
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// MetricsHandler serves Prometheus metrics
func (h *Handlers) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	handler := promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
		ErrorLog:      &loggerAdapter{},
		ErrorHandling: promhttp.ContinueOnError,
	})

	handler.ServeHTTP(w, r)
}

// IndexHandler serves the index page
func (h *Handlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)

	html := `<!DOCTYPE html>
<html>
<head>
    <title>NTP Sync</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        h1 { color: #333; }
        ul { list-style-type: none; padding: 0; }
        li { margin: 10px 0; }
        a { color: #0066cc; text-decoration: none; }
        .info { background-color: #f0f0f0; padding: 15px; border-radius: 5px; }
    </style>
</head>
<body>
    <h1>NTP Sync</h1>
    <div class="info">
        <h2>Available Endpoints:</h2>
        <ul>
            <li><a href="/time">/time</a> - Corrected current time</li>
            <li><a href="/history">/history</a> - Sync history and offset statistics</li>
            <li><a href="/servers">/servers</a> - Server rotation (?probe=true for diagnostics)</li>
            <li>POST /sync - Run one sync attempt</li>
            <li>POST /online?state=true|false - Go online or offline</li>
            <li><a href="/health">/health</a> - Health check</li>
            <li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
        </ul>
        <h2>Configuration:</h2>
        <ul>
            <li>Servers: ` + strconv.Itoa(len(h.config.Sync.Servers)) + ` configured</li>
            <li>History capacity: ` + strconv.Itoa(h.config.Sync.HistoryCapacity) + `</li>
            <li>Sync interval: ` + h.config.Sync.Interval.String() + `</li>
            <li>Timeout: ` + h.config.Sync.Timeout.String() + `</li>
        </ul>
    </div>
</body>
</html>`

	_, _ = w.Write([]byte(html))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("server", "Failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// loggerAdapter adapts pkg/logger to promhttp logger interface
type loggerAdapter struct{}

func (l *loggerAdapter) Println(v ...interface{}) {
	logger.Error("promhttp", fmt.Sprint(v...), nil)
}
