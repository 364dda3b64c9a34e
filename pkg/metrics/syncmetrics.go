package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics holds the sync engine metrics and implements the engine's
// Recorder interface
type SyncMetrics struct {
	// Exchange metrics
	ExchangeDurationSeconds *prometheus.HistogramVec
	ExchangesTotal          *prometheus.CounterVec
	FailuresTotal           *prometheus.CounterVec
	LastOffsetSeconds       *prometheus.GaugeVec

	// Ledger metrics
	EstimatedOffsetSeconds prometheus.Gauge
	ConsecutiveErrors      prometheus.Gauge
	ErrorState             prometheus.Gauge
	CurrentServer          *prometheus.GaugeVec

	// Engine state
	Online       prometheus.Gauge
	BuildInfo    *prometheus.GaugeVec
	ServersTotal prometheus.Gauge

	// HTTP API
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	mu            sync.Mutex
	currentServer string
}

// NewSyncMetrics creates metrics under the default "ntp_sync" namespace
func NewSyncMetrics() *SyncMetrics {
	return NewSyncMetricsWithConfig("ntp_sync", "")
}

// NewSyncMetricsWithConfig creates metrics with a custom namespace and subsystem
func NewSyncMetricsWithConfig(namespace, subsystem string) *SyncMetrics {
	return &SyncMetrics{
		ExchangeDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "exchange_duration_seconds",
				Help:      "Duration of time-protocol exchanges in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"server"},
		),
		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "exchanges_total",
				Help:      "Total number of exchanges by result",
			},
			[]string{"server", "result"},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "failures_total",
				Help:      "Total number of failed exchanges by error kind",
			},
			[]string{"server", "kind"},
		),
		LastOffsetSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_offset_seconds",
				Help:      "Offset observed in the last successful exchange with each server",
			},
			[]string{"server"},
		),
		EstimatedOffsetSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "estimated_offset_seconds",
			Help:      "Mean offset over the retained history, applied to corrected time",
		}),
		ConsecutiveErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "consecutive_errors",
			Help:      "Number of failed attempts since the last success",
		}),
		ErrorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "error_state",
			Help:      "Whether the last completed attempt failed (1) or succeeded (0)",
		}),
		CurrentServer: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "current_server",
				Help:      "Set to 1 for the server the rotation currently prefers",
			},
			[]string{"server"},
		),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "online",
			Help:      "Whether the engine is online (1) or offline (0)",
		}),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "go_version"},
		),
		ServersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "servers_configured",
			Help:      "Number of servers in the rotation",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP API requests",
			},
			[]string{"path", "code"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP API requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}
}

// ObserveExchange records one exchange; kind is empty on success
func (m *SyncMetrics) ObserveExchange(server string, kind string, offsetMs int64, duration time.Duration) {
	m.ExchangeDurationSeconds.WithLabelValues(server).Observe(duration.Seconds())

	if kind == "" {
		m.ExchangesTotal.WithLabelValues(server, "success").Inc()
		m.LastOffsetSeconds.WithLabelValues(server).Set(float64(offsetMs) / 1000)
		return
	}

	m.ExchangesTotal.WithLabelValues(server, "failure").Inc()
	m.FailuresTotal.WithLabelValues(server, kind).Inc()
}

// ObserveLedger mirrors ledger counters into gauges
func (m *SyncMetrics) ObserveLedger(currentServer string, consecutiveErrors int, inErrorState bool, estimatedOffsetMs int64) {
	m.EstimatedOffsetSeconds.Set(float64(estimatedOffsetMs) / 1000)
	m.ConsecutiveErrors.Set(float64(consecutiveErrors))
	m.ErrorState.Set(boolToFloat(inErrorState))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentServer != currentServer {
		if m.currentServer != "" {
			m.CurrentServer.WithLabelValues(m.currentServer).Set(0)
		}
		m.CurrentServer.WithLabelValues(currentServer).Set(1)
		m.currentServer = currentServer
	}
}

// ObserveOnline records the online flag
func (m *SyncMetrics) ObserveOnline(online bool) {
	m.Online.Set(boolToFloat(online))
}

// ObserveHTTP records one served HTTP request
func (m *SyncMetrics) ObserveHTTP(path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(path).Observe(duration.Seconds())
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *SyncMetrics) getAllMetrics() []prometheus.Collector {
	return []prometheus.Collector{
		m.ExchangeDurationSeconds,
		m.ExchangesTotal,
		m.FailuresTotal,
		m.LastOffsetSeconds,
		m.EstimatedOffsetSeconds,
		m.ConsecutiveErrors,
		m.ErrorState,
		m.CurrentServer,
		m.Online,
		m.BuildInfo,
		m.ServersTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
	}
}

// Describe implements prometheus.Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range m.getAllMetrics() {
		metric.Describe(ch)
	}
}

// Collect implements prometheus.Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range m.getAllMetrics() {
		metric.Collect(ch)
	}
}
