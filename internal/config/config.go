// Package config provides configuration loading with explicit naming
//
// Available functions:
//
//	LoadFromEnvVarsOnly()                - Environment variables ONLY
//	                                       Use: Docker, Kubernetes (no ConfigMap)
//
//	LoadFromYamlFile(path)               - YAML file ONLY (no env overrides)
//	                                       Use: Local development, testing
//
//	LoadFromYamlWithEnvOverrides(path)   - YAML base + Environment overrides
//	                                       Priority: Env Vars > YAML > Defaults
//
// Environment variables supported:
//
//	SYNC:
//	  - NTP_SYNC_SERVERS (comma-separated host[:port]), NTP_SYNC_HISTORY
//	  - NTP_SYNC_INTERVAL, NTP_SYNC_TIMEOUT
//	  - NTP_SYNC_ON_CREATION, NTP_SYNC_AUTO, NTP_SYNC_START_ONLINE
//	  - NTP_SYNC_PROBE_WORKERS, NTP_SYNC_PROBE_VERSION
//
//	SERVER:
//	  - NTP_SYNC_ADDRESS, NTP_SYNC_PORT
//	  - SERVER_READ_TIMEOUT, SERVER_WRITE_TIMEOUT
//	  - TLS_ENABLED, TLS_CERT_FILE, TLS_KEY_FILE
//	  - ENABLE_CORS, ALLOWED_ORIGINS (comma-separated)
//
//	RATE_LIMIT:
//	  - RATE_LIMIT_ENABLED, RATE_LIMIT_GLOBAL, RATE_LIMIT_PER_SERVER, RATE_LIMIT_BURST_SIZE
//
//	CIRCUIT_BREAKER:
//	  - CIRCUIT_BREAKER_ENABLED, CIRCUIT_BREAKER_MAX_REQUESTS
//	  - CIRCUIT_BREAKER_INTERVAL, CIRCUIT_BREAKER_TIMEOUT
//	  - CIRCUIT_BREAKER_FAILURE_THRESHOLD
//
//	DNS_CACHE:
//	  - DNS_CACHE_ENABLED, DNS_CACHE_MIN_TTL, DNS_CACHE_MAX_TTL, DNS_CACHE_CLEANUP_INTERVAL
//
//	LOGGING:
//	  - LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT, LOG_ENABLE_FILE, LOG_FILE_PATH
//	  - LOG_MAX_SIZE_MB, LOG_MAX_BACKUPS, LOG_MAX_AGE_DAYS, LOG_COMPRESS
//
//	METRICS:
//	  - METRICS_NAMESPACE, METRICS_SUBSYSTEM
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/maximewewer/ntp-sync/internal/ntp"
	"github.com/maximewewer/ntp-sync/internal/timesync"
	"github.com/maximewewer/ntp-sync/pkg/logger"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	EnableCORS     bool          `yaml:"enable_cors"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	TLSEnabled     bool          `yaml:"tls_enabled"`
	TLSCertFile    string        `yaml:"tls_cert_file"`
	TLSKeyFile     string        `yaml:"tls_key_file"`
}

// SyncConfig contains the sync engine and transport configuration
type SyncConfig struct {
	Servers         []string             `yaml:"servers"`
	HistoryCapacity int                  `yaml:"history_capacity"`
	Interval        time.Duration        `yaml:"interval"`
	Timeout         time.Duration        `yaml:"timeout"`
	OnCreation      bool                 `yaml:"on_creation"`
	AutoSync        bool                 `yaml:"auto_sync"`
	StartOnline     bool                 `yaml:"start_online"`
	ProbeWorkers    int                  `yaml:"probe_workers"`
	ProbeVersion    int                  `yaml:"probe_version"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	DNSCache        DNSCacheConfig       `yaml:"dns_cache"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled       bool    `yaml:"enabled"`
	GlobalRate    float64 `yaml:"global_rate"`
	PerServerRate float64 `yaml:"per_server_rate"`
	BurstSize     int     `yaml:"burst_size"`
}

// CircuitBreakerConfig contains circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
}

// DNSCacheConfig contains DNS cache configuration
type DNSCacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	MinTTL          time.Duration `yaml:"min_ttl"`
	MaxTTL          time.Duration `yaml:"max_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	EnableFile bool   `yaml:"enable_file"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// LoadFromYamlFile reads configuration from a YAML file only (no env var overrides)
func LoadFromYamlFile(path string) (*Config, error) {
	cfg, err := readYaml(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration", err)
		return nil, fmt.Errorf("configuration validation failed for %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromYamlWithEnvOverrides loads base config from YAML, then overrides with environment variables.
// A missing or unreadable file falls back to defaults.
func LoadFromYamlWithEnvOverrides(path string) (*Config, error) {
	cfg, err := readYaml(path)
	if err != nil {
		logger.Warn("config", "Failed to load YAML config file, falling back to env vars only")
		cfg = DefaultConfig()
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration after env overrides", err)
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFromEnvVarsOnly loads configuration from environment variables only (no YAML file)
func LoadFromEnvVarsOnly() (*Config, error) {
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration from environment", err)
		return nil, fmt.Errorf("environment configuration validation failed: %w", err)
	}

	return cfg, nil
}

// readYaml decodes path over the switch defaults, then fills remaining zero values
func readYaml(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("config", "Failed to read config file", err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := baseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		logger.Error("config", "Failed to parse config file", err)
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", path, err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// ParsedServers converts the configured addresses into servers, in order
func (c *SyncConfig) ParsedServers() ([]ntp.Server, error) {
	servers := make([]ntp.Server, 0, len(c.Servers))
	for i, s := range c.Servers {
		server, err := ntp.ParseServer(s)
		if err != nil {
			return nil, fmt.Errorf("servers[%d]: %w", i, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// ToEngineConfig builds the sync engine configuration
func (c *Config) ToEngineConfig() (timesync.Config, error) {
	servers, err := c.Sync.ParsedServers()
	if err != nil {
		return timesync.Config{}, err
	}

	return timesync.Config{
		Servers:         servers,
		HistoryCapacity: c.Sync.HistoryCapacity,
		SyncInterval:    c.Sync.Interval,
		SyncTimeout:     c.Sync.Timeout,
		SyncOnCreation:  c.Sync.OnCreation,
		AutoSync:        c.Sync.AutoSync,
		StartOnline:     c.Sync.StartOnline,
	}, nil
}

// ToLoggerConfig builds the logger configuration
func (c *Config) ToLoggerConfig(component string) logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		Component:  component,
		EnableFile: c.Logging.EnableFile,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// applyEnvOverrides applies environment variable overrides to an existing config.
// Values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Sync
	if servers := os.Getenv("NTP_SYNC_SERVERS"); servers != "" {
		cfg.Sync.Servers = parseCommaSeparated(servers)
	}
	envInt("NTP_SYNC_HISTORY", &cfg.Sync.HistoryCapacity)
	envDuration("NTP_SYNC_INTERVAL", &cfg.Sync.Interval)
	envDuration("NTP_SYNC_TIMEOUT", &cfg.Sync.Timeout)
	envBool("NTP_SYNC_ON_CREATION", &cfg.Sync.OnCreation)
	envBool("NTP_SYNC_AUTO", &cfg.Sync.AutoSync)
	envBool("NTP_SYNC_START_ONLINE", &cfg.Sync.StartOnline)
	envInt("NTP_SYNC_PROBE_WORKERS", &cfg.Sync.ProbeWorkers)
	envInt("NTP_SYNC_PROBE_VERSION", &cfg.Sync.ProbeVersion)

	// HTTP server
	envString("NTP_SYNC_ADDRESS", &cfg.Server.Address)
	envInt("NTP_SYNC_PORT", &cfg.Server.Port)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envBool("TLS_ENABLED", &cfg.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &cfg.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &cfg.Server.TLSKeyFile)
	envBool("ENABLE_CORS", &cfg.Server.EnableCORS)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = parseCommaSeparated(origins)
	}

	// Rate limit
	envBool("RATE_LIMIT_ENABLED", &cfg.Sync.RateLimit.Enabled)
	envFloat("RATE_LIMIT_GLOBAL", &cfg.Sync.RateLimit.GlobalRate)
	envFloat("RATE_LIMIT_PER_SERVER", &cfg.Sync.RateLimit.PerServerRate)
	envInt("RATE_LIMIT_BURST_SIZE", &cfg.Sync.RateLimit.BurstSize)

	// Circuit breaker
	envBool("CIRCUIT_BREAKER_ENABLED", &cfg.Sync.CircuitBreaker.Enabled)
	if maxRequests := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); maxRequests != "" {
		if r, err := strconv.ParseUint(maxRequests, 10, 32); err == nil {
			cfg.Sync.CircuitBreaker.MaxRequests = uint32(r)
		}
	}
	envDuration("CIRCUIT_BREAKER_INTERVAL", &cfg.Sync.CircuitBreaker.Interval)
	envDuration("CIRCUIT_BREAKER_TIMEOUT", &cfg.Sync.CircuitBreaker.Timeout)
	envFloat("CIRCUIT_BREAKER_FAILURE_THRESHOLD", &cfg.Sync.CircuitBreaker.FailureThreshold)

	// DNS cache
	envBool("DNS_CACHE_ENABLED", &cfg.Sync.DNSCache.Enabled)
	envDuration("DNS_CACHE_MIN_TTL", &cfg.Sync.DNSCache.MinTTL)
	envDuration("DNS_CACHE_MAX_TTL", &cfg.Sync.DNSCache.MaxTTL)
	envDuration("DNS_CACHE_CLEANUP_INTERVAL", &cfg.Sync.DNSCache.CleanupInterval)

	// Logging
	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)
	envString("LOG_OUTPUT", &cfg.Logging.Output)
	envBool("LOG_ENABLE_FILE", &cfg.Logging.EnableFile)
	envString("LOG_FILE_PATH", &cfg.Logging.FilePath)
	envInt("LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB)
	envInt("LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups)
	envInt("LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays)
	envBool("LOG_COMPRESS", &cfg.Logging.Compress)

	// Metrics
	envString("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	envString("METRICS_SUBSYSTEM", &cfg.Metrics.Subsystem)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// parseCommaSeparated splits a comma-separated string, dropping empty items
func parseCommaSeparated(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
