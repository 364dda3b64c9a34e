package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/maximewewer/ntp-sync/internal/config"
	"github.com/maximewewer/ntp-sync/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	engine   SyncEngine
	prober   ServerProber
	breakers BreakerStates
	registry *prometheus.Registry
	observer RequestObserver
	server   *http.Server
}

// New creates a new HTTP server. prober and observer may be nil.
func New(cfg *config.Config, engine SyncEngine, prober ServerProber, registry *prometheus.Registry, observer RequestObserver) *Server {
	return &Server{
		config:   cfg,
		engine:   engine,
		prober:   prober,
		registry: registry,
		observer: observer,
	}
}

// SetBreakers exposes circuit breaker states on /health
func (s *Server) SetBreakers(b BreakerStates) {
	s.breakers = b
}

// Handler builds the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	handlers := NewHandlers(s.config, s.engine, s.prober, s.registry)
	handlers.breakers = s.breakers

	mux.HandleFunc("GET /time", handlers.TimeHandler)
	mux.HandleFunc("GET /history", handlers.HistoryHandler)
	mux.HandleFunc("POST /sync", handlers.SyncHandler)
	mux.HandleFunc("POST /online", handlers.OnlineHandler)
	mux.HandleFunc("GET /servers", handlers.ServersHandler)
	mux.HandleFunc("GET /health", handlers.HealthHandler)
	mux.HandleFunc("GET /metrics", handlers.MetricsHandler)
	mux.HandleFunc("GET /{$}", handlers.IndexHandler)

	middleware := NewMiddleware(s.config, s.observer)
	return middleware.Apply(mux)
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Address, strconv.Itoa(s.config.Server.Port))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	if s.config.Server.TLSEnabled {
		s.server.TLSConfig = createSecureTLSConfig()
		logger.Infof("server", "Starting HTTPS server on %s with TLS 1.2+", addr)
	} else {
		logger.Infof("server", "Starting HTTP server on %s", addr)
	}

	errChan := make(chan error, 1)
	go func() {
		if s.config.Server.TLSEnabled {
			errChan <- s.server.ListenAndServeTLS(
				s.config.Server.TLSCertFile,
				s.config.Server.TLSKeyFile,
			)
		} else {
			errChan <- s.server.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("server", "Shutting down HTTP server")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "Server error", err)
			return fmt.Errorf("HTTP server failed on %s: %w", s.server.Addr, err)
		}
		return nil
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server", "Server shutdown failed", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("server shutdown timeout after 10s: %w", err)
		}
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server", "HTTP server stopped")
	return nil
}

// createSecureTLSConfig restricts the listener to TLS 1.2+ with ECDHE suites
func createSecureTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP384,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}
