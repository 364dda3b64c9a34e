package config

import (
	"time"

	"github.com/maximewewer/ntp-sync/internal/timesync"
)

// baseConfig holds the switches that default to true. YAML is decoded over
// it so an absent key keeps the default while an explicit false wins.
func baseConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			OnCreation:  true,
			AutoSync:    true,
			StartOnline: true,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled: true,
			},
			DNSCache: DNSCacheConfig{
				Enabled: true,
			},
		},
	}
}

// ApplyDefaults sets default values for unspecified configuration fields
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9560
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{}
	}

	// Sync defaults
	if len(cfg.Sync.Servers) == 0 {
		for _, s := range timesync.DefaultServers {
			cfg.Sync.Servers = append(cfg.Sync.Servers, s.String())
		}
	}
	if cfg.Sync.HistoryCapacity == 0 {
		cfg.Sync.HistoryCapacity = timesync.DefaultHistoryCapacity
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = timesync.DefaultSyncInterval
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = timesync.DefaultSyncTimeout
	}
	if cfg.Sync.ProbeWorkers == 0 {
		cfg.Sync.ProbeWorkers = 5
	}
	if cfg.Sync.ProbeVersion == 0 {
		cfg.Sync.ProbeVersion = 4
	}

	// Rate limiting defaults (disabled unless enabled)
	if cfg.Sync.RateLimit.GlobalRate == 0 {
		cfg.Sync.RateLimit.GlobalRate = 100
	}
	if cfg.Sync.RateLimit.PerServerRate == 0 {
		cfg.Sync.RateLimit.PerServerRate = 1
	}
	if cfg.Sync.RateLimit.BurstSize == 0 {
		cfg.Sync.RateLimit.BurstSize = 5
	}

	// Circuit breaker defaults
	if cfg.Sync.CircuitBreaker.MaxRequests == 0 {
		cfg.Sync.CircuitBreaker.MaxRequests = 3
	}
	if cfg.Sync.CircuitBreaker.Interval == 0 {
		cfg.Sync.CircuitBreaker.Interval = 60 * time.Second
	}
	if cfg.Sync.CircuitBreaker.Timeout == 0 {
		cfg.Sync.CircuitBreaker.Timeout = 30 * time.Second
	}
	if cfg.Sync.CircuitBreaker.FailureThreshold == 0 {
		cfg.Sync.CircuitBreaker.FailureThreshold = 0.6
	}

	// DNS cache defaults
	if cfg.Sync.DNSCache.MinTTL == 0 {
		cfg.Sync.DNSCache.MinTTL = 5 * time.Minute
	}
	if cfg.Sync.DNSCache.MaxTTL == 0 {
		cfg.Sync.DNSCache.MaxTTL = 60 * time.Minute
	}
	if cfg.Sync.DNSCache.CleanupInterval == 0 {
		cfg.Sync.DNSCache.CleanupInterval = 10 * time.Minute
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "ntp_sync"
	}
}

// DefaultConfig returns a configuration with all defaults applied
func DefaultConfig() *Config {
	cfg := baseConfig()
	ApplyDefaults(cfg)
	return cfg
}
