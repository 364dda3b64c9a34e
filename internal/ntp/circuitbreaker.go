package ntp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maximewewer/ntp-sync/pkg/logger"
	"github.com/sony/gobreaker"
)

// CircuitBreakerTransport wraps a Transport with one breaker per server.
// An open breaker fails fast with a *TransportError, which the engine treats
// like any other failure and rotates away from the server.
type CircuitBreakerTransport struct {
	inner    Transport
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex
	config   CircuitBreakerConfig
}

// CircuitBreakerConfig holds configuration for circuit breakers.
type CircuitBreakerConfig struct {
	// MaxRequests is the number of trial exchanges allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which counts reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// ReadyToTrip decides, from the current counts, whether to open.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultCircuitBreakerConfig trips once 60% of at least 3 exchanges failed.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return NewCircuitBreakerConfigWithThreshold(3, 60*time.Second, 30*time.Second, 0.6)
}

// NewCircuitBreakerConfigWithThreshold builds a config that trips at the given failure ratio.
func NewCircuitBreakerConfigWithThreshold(maxRequests uint32, interval, timeout time.Duration, failureThreshold float64) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= failureThreshold
		},
	}
}

// NewCircuitBreakerTransport wraps inner with per-server breakers.
func NewCircuitBreakerTransport(inner Transport, config CircuitBreakerConfig) *CircuitBreakerTransport {
	if config.MaxRequests == 0 {
		config = DefaultCircuitBreakerConfig()
	}

	return &CircuitBreakerTransport{
		inner:    inner,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
	}
}

func (cb *CircuitBreakerTransport) breakerFor(server Server) *gobreaker.CircuitBreaker {
	key := server.String()

	cb.mu.RLock()
	breaker, exists := cb.breakers[key]
	cb.mu.RUnlock()
	if exists {
		return breaker
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if breaker, exists := cb.breakers[key]; exists {
		return breaker
	}

	breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: cb.config.MaxRequests,
		Interval:    cb.config.Interval,
		Timeout:     cb.config.Timeout,
		ReadyToTrip: cb.config.ReadyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.SafeInfo("ntp", "Circuit breaker state changed", map[string]interface{}{
				"server": name,
				"from":   from.String(),
				"to":     to.String(),
			})
		},
	})

	cb.breakers[key] = breaker
	return breaker
}

// Exchange runs the inner exchange through the server's breaker
func (cb *CircuitBreakerTransport) Exchange(ctx context.Context, server Server, request []byte, timeout time.Duration) ([]byte, error) {
	breaker := cb.breakerFor(server)

	result, err := breaker.Execute(func() (interface{}, error) {
		return cb.inner.Exchange(ctx, server, request, timeout)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransportError{Op: "circuit breaker", Server: server, Err: err}
		}
		return nil, err
	}

	return result.([]byte), nil
}

// State returns the breaker state for a server
func (cb *CircuitBreakerTransport) State(server Server) gobreaker.State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	breaker, exists := cb.breakers[server.String()]
	if !exists {
		return gobreaker.StateClosed
	}
	return breaker.State()
}

// States returns the state of every breaker created so far
func (cb *CircuitBreakerTransport) States() map[string]gobreaker.State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	states := make(map[string]gobreaker.State, len(cb.breakers))
	for server, breaker := range cb.breakers {
		states[server] = breaker.State()
	}
	return states
}
