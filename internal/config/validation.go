package config

import (
	"errors"
	"strconv"
	"time"
)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if err := validateSync(&cfg.Sync); err != nil {
		return err
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}

	if cfg.Metrics.Namespace == "" {
		return errors.New("metrics namespace is required")
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New("port must be between 1 and 65535, got " + strconv.Itoa(cfg.Port))
	}

	if cfg.ReadTimeout < 1*time.Second || cfg.ReadTimeout > 60*time.Second {
		return errors.New("read_timeout must be between 1s and 60s")
	}

	if cfg.WriteTimeout < 1*time.Second || cfg.WriteTimeout > 60*time.Second {
		return errors.New("write_timeout must be between 1s and 60s")
	}

	if cfg.TLSEnabled {
		if cfg.TLSCertFile == "" {
			return errors.New("tls_cert_file is required when tls_enabled is true")
		}
		if cfg.TLSKeyFile == "" {
			return errors.New("tls_key_file is required when tls_enabled is true")
		}
	}

	return nil
}

func validateSync(cfg *SyncConfig) error {
	if len(cfg.Servers) == 0 {
		return errors.New("at least one time server must be configured")
	}

	if _, err := cfg.ParsedServers(); err != nil {
		return err
	}

	if cfg.HistoryCapacity < 1 || cfg.HistoryCapacity > 10000 {
		return errors.New("history_capacity must be between 1 and 10000, got " + strconv.Itoa(cfg.HistoryCapacity))
	}

	if cfg.Interval < 1*time.Second {
		return errors.New("interval must be at least 1s")
	}

	if cfg.Timeout < 100*time.Millisecond || cfg.Timeout > 60*time.Second {
		return errors.New("timeout must be between 100ms and 60s")
	}

	if cfg.ProbeWorkers < 1 || cfg.ProbeWorkers > 100 {
		return errors.New("probe_workers must be between 1 and 100, got " + strconv.Itoa(cfg.ProbeWorkers))
	}

	if cfg.ProbeVersion < 2 || cfg.ProbeVersion > 4 {
		return errors.New("probe_version must be 2, 3, or 4, got " + strconv.Itoa(cfg.ProbeVersion))
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.GlobalRate <= 0 {
			return errors.New("rate_limit.global_rate must be positive")
		}
		if cfg.RateLimit.PerServerRate <= 0 {
			return errors.New("rate_limit.per_server_rate must be positive")
		}
		if cfg.RateLimit.BurstSize < 1 {
			return errors.New("rate_limit.burst_size must be at least 1")
		}
	}

	if cfg.CircuitBreaker.Enabled {
		if cfg.CircuitBreaker.FailureThreshold <= 0 || cfg.CircuitBreaker.FailureThreshold > 1 {
			return errors.New("circuit_breaker.failure_threshold must be in (0, 1]")
		}
	}

	if cfg.DNSCache.Enabled && cfg.DNSCache.MinTTL > cfg.DNSCache.MaxTTL {
		return errors.New("dns_cache.min_ttl must not exceed dns_cache.max_ttl")
	}

	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLevels[cfg.Level] {
		return errors.New("invalid log level (must be trace, debug, info, warn, error, fatal, or panic)")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[cfg.Format] {
		return errors.New("invalid log format (must be json or console)")
	}

	switch cfg.Output {
	case "stdout", "stderr", "file":
	default:
		return errors.New("invalid log output (must be stdout, stderr, or file)")
	}

	if cfg.EnableFile && cfg.FilePath == "" {
		return errors.New("file_path is required when enable_file is true")
	}

	return nil
}
