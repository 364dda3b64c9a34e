package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()

	err := Validate(cfg)

	assert.NoError(t, err)
}

func TestValidateServer_ValidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
		want bool
	}{
		{"minimum_port", 1, true},
		{"standard_port", 9560, true},
		{"maximum_port", 65535, true},
		{"zero_port", 0, false},
		{"negative_port", -1, false},
		{"too_high_port", 65536, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ServerConfig{
				Port:         tt.port,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}

			err := validateServer(cfg)

			if tt.want {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "port")
			}
		})
	}
}

func TestValidateServer_TLSConfig(t *testing.T) {
	tests := []struct {
		name    string
		cert    string
		key     string
		wantErr string
	}{
		{"complete", "cert.pem", "key.pem", ""},
		{"missing_cert", "", "key.pem", "tls_cert_file"},
		{"missing_key", "cert.pem", "", "tls_key_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ServerConfig{
				Port:         9560,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				TLSEnabled:   true,
				TLSCertFile:  tt.cert,
				TLSKeyFile:   tt.key,
			}

			err := validateServer(cfg)

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSync(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*SyncConfig)
		wantErr string
	}{
		{"defaults", func(c *SyncConfig) {}, ""},
		{"no_servers", func(c *SyncConfig) { c.Servers = nil }, "at least one time server"},
		{"bad_server_port", func(c *SyncConfig) { c.Servers = []string{"a.example.org:0"} }, "invalid port"},
		{"empty_server", func(c *SyncConfig) { c.Servers = []string{" "} }, "empty server"},
		{"zero_capacity", func(c *SyncConfig) { c.HistoryCapacity = 0 }, "history_capacity"},
		{"capacity_one", func(c *SyncConfig) { c.HistoryCapacity = 1 }, ""},
		{"short_interval", func(c *SyncConfig) { c.Interval = 500 * time.Millisecond }, "interval"},
		{"tiny_timeout", func(c *SyncConfig) { c.Timeout = 10 * time.Millisecond }, "timeout"},
		{"huge_timeout", func(c *SyncConfig) { c.Timeout = 2 * time.Minute }, "timeout"},
		{"no_probe_workers", func(c *SyncConfig) { c.ProbeWorkers = 0 }, "probe_workers"},
		{"bad_probe_version", func(c *SyncConfig) { c.ProbeVersion = 5 }, "probe_version"},
		{"rate_limit_zero_rate", func(c *SyncConfig) {
			c.RateLimit.Enabled = true
			c.RateLimit.PerServerRate = 0
		}, "per_server_rate"},
		{"rate_limit_zero_burst", func(c *SyncConfig) {
			c.RateLimit.Enabled = true
			c.RateLimit.BurstSize = 0
		}, "burst_size"},
		{"breaker_threshold_above_one", func(c *SyncConfig) { c.CircuitBreaker.FailureThreshold = 1.5 }, "failure_threshold"},
		{"breaker_disabled_ignores_threshold", func(c *SyncConfig) {
			c.CircuitBreaker.Enabled = false
			c.CircuitBreaker.FailureThreshold = 1.5
		}, ""},
		{"dns_ttl_inverted", func(c *SyncConfig) {
			c.DNSCache.MinTTL = time.Hour
			c.DNSCache.MaxTTL = time.Minute
		}, "min_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg.Sync)

			err := validateSync(&cfg.Sync)

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateLogging(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LoggingConfig
		wantErr bool
	}{
		{"valid", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, false},
		{"trace_console_stderr", LoggingConfig{Level: "trace", Format: "console", Output: "stderr"}, false},
		{"bad_level", LoggingConfig{Level: "verbose", Format: "json", Output: "stdout"}, true},
		{"bad_format", LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}, true},
		{"bad_output", LoggingConfig{Level: "info", Format: "json", Output: "syslog"}, true},
		{"file_without_path", LoggingConfig{Level: "info", Format: "json", Output: "file", EnableFile: true}, true},
		{"file_with_path", LoggingConfig{Level: "info", Format: "json", Output: "file", EnableFile: true, FilePath: "/tmp/x.log"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLogging(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_MetricsNamespace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Namespace = ""

	assert.ErrorContains(t, Validate(cfg), "namespace")
}

func BenchmarkValidate(b *testing.B) {
	cfg := DefaultConfig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Validate(cfg)
	}
}
