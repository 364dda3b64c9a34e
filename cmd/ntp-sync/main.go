package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/maximewewer/ntp-sync/internal/config"
	"github.com/maximewewer/ntp-sync/internal/ntp"
	"github.com/maximewewer/ntp-sync/internal/server"
	"github.com/maximewewer/ntp-sync/internal/timesync"
	"github.com/maximewewer/ntp-sync/pkg/logger"
	"github.com/maximewewer/ntp-sync/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Build information
	version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "ntp-sync",
		Short:         "Network time estimate served over HTTP",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the sync engine and HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := setup(configFile)
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return run(ctx, cfg)
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run one sync attempt and print the result",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := setup(configFile)
				if err != nil {
					return err
				}
				return syncOnce(cmd.Context(), cfg, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "probe",
			Short: "Probe every configured server with the full protocol",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := setup(configFile)
				if err != nil {
					return err
				}
				return probe(cmd.Context(), cfg, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ntp-sync version %s (%s)\n", version, runtime.Version())
			},
		},
	)

	return root
}

// setup loads configuration and initializes the logger
func setup(configFile string) (*config.Config, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.InitLogger(cfg.ToLoggerConfig("ntp-sync")); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// loadConfig loads configuration based on whether a config file is specified
func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		// Priority: Environment Variables > YAML File > Defaults
		return config.LoadFromYamlWithEnvOverrides(configFile)
	}
	return config.LoadFromEnvVarsOnly()
}

// buildTransport stacks the optional DNS cache, rate limiter and circuit
// breaker around the UDP transport. The returned cache is nil when disabled.
func buildTransport(cfg *config.Config) (ntp.Transport, *ntp.DNSCache) {
	var dnsCache *ntp.DNSCache
	if cfg.Sync.DNSCache.Enabled {
		dnsCache = ntp.NewDNSCache(ntp.DNSCacheConfig{
			MinTTL: cfg.Sync.DNSCache.MinTTL,
			MaxTTL: cfg.Sync.DNSCache.MaxTTL,
		})
	}

	var transport ntp.Transport = ntp.NewUDPTransport(dnsCache)

	if rl := cfg.Sync.RateLimit; rl.Enabled {
		transport = ntp.NewRateLimitedTransport(transport, rl.GlobalRate, rl.PerServerRate, rl.BurstSize)
	}

	if cb := cfg.Sync.CircuitBreaker; cb.Enabled {
		transport = ntp.NewCircuitBreakerTransport(transport,
			ntp.NewCircuitBreakerConfigWithThreshold(cb.MaxRequests, cb.Interval, cb.Timeout, cb.FailureThreshold))
	}

	return transport, dnsCache
}

func run(ctx context.Context, cfg *config.Config) error {
	logger.Startup(version, cfg)

	registry := metrics.NewRegistryWithConfig(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	if err := registry.Register(); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	m := registry.GetMetrics()
	m.BuildInfo.WithLabelValues(version, runtime.Version()).Set(1)
	m.ServersTotal.Set(float64(len(cfg.Sync.Servers)))

	transport, dnsCache := buildTransport(cfg)
	if dnsCache != nil {
		go dnsCache.StartCleanupWorker(ctx, cfg.Sync.DNSCache.CleanupInterval)
	}

	engineCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return err
	}

	engine, err := timesync.New(engineCfg, transport, timesync.WithRecorder(m))
	if err != nil {
		return fmt.Errorf("failed to create sync engine: %w", err)
	}
	defer engine.Close()

	pool := ntp.NewWorkerPool(cfg.Sync.ProbeWorkers, ntp.NewProber(cfg.Sync.Timeout, cfg.Sync.ProbeVersion))
	srv := server.New(cfg, engine, pool, registry.GetRegistry(), m)
	if breakers, ok := transport.(server.BreakerStates); ok {
		srv.SetBreakers(breakers)
	}

	err = srv.Start(ctx)
	logger.Shutdown("graceful")
	return err
}

// syncOnce runs a single attempt against a fresh engine and prints the ledger
func syncOnce(ctx context.Context, cfg *config.Config, out io.Writer) error {
	engineCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return err
	}
	engineCfg.SyncOnCreation = false
	engineCfg.AutoSync = false
	engineCfg.StartOnline = true

	transport, _ := buildTransport(cfg)
	engine, err := timesync.New(engineCfg, transport)
	if err != nil {
		return fmt.Errorf("failed to create sync engine: %w", err)
	}
	defer engine.Close()

	ok := engine.SyncTime(ctx)

	history := engine.GetHistory()
	if err := writeJSON(out, map[string]interface{}{
		"success":   ok,
		"offset_ms": engine.EstimatedOffsetMs(),
		"time":      engine.GetTime().Format(time.RFC3339Nano),
		"history":   history,
	}); err != nil {
		return err
	}

	if !ok {
		if history.LastError != nil {
			return fmt.Errorf("sync with %s failed: %s", history.LastError.Server, history.LastError.Message)
		}
		return fmt.Errorf("sync failed")
	}
	return nil
}

// probe runs a full-protocol diagnostic against every configured server
func probe(ctx context.Context, cfg *config.Config, out io.Writer) error {
	servers, err := cfg.Sync.ParsedServers()
	if err != nil {
		return err
	}

	pool := ntp.NewWorkerPool(cfg.Sync.ProbeWorkers, ntp.NewProber(cfg.Sync.Timeout, cfg.Sync.ProbeVersion))
	results, err := pool.ProbeAll(ctx, servers)
	if err != nil {
		return err
	}

	return writeJSON(out, results)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
