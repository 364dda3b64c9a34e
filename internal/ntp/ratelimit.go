package ntp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedTransport throttles exchanges globally and per server so a
// tight resync loop cannot hammer a public pool
type RateLimitedTransport struct {
	inner         Transport
	global        *rate.Limiter
	perServer     map[string]*rate.Limiter
	mu            sync.Mutex
	perServerRate float64
	burstSize     int
}

// NewRateLimitedTransport wraps inner. Rates are in exchanges per second.
func NewRateLimitedTransport(inner Transport, globalRate, perServerRate float64, burstSize int) *RateLimitedTransport {
	if burstSize < 1 {
		burstSize = 1
	}
	return &RateLimitedTransport{
		inner:         inner,
		global:        rate.NewLimiter(rate.Limit(globalRate), burstSize),
		perServer:     make(map[string]*rate.Limiter),
		perServerRate: perServerRate,
		burstSize:     burstSize,
	}
}

// Exchange waits for a token, then delegates. Waiting counts against the
// exchange timeout.
func (t *RateLimitedTransport) Exchange(ctx context.Context, server Server, request []byte, timeout time.Duration) ([]byte, error) {
	start := time.Now()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := t.global.Wait(waitCtx); err != nil {
		return nil, &TransportError{Op: "rate limit", Server: server, Err: fmt.Errorf("global: %w", err)}
	}
	if err := t.limiterFor(server).Wait(waitCtx); err != nil {
		return nil, &TransportError{Op: "rate limit", Server: server, Err: fmt.Errorf("per-server: %w", err)}
	}

	remaining := timeout - time.Since(start)
	if remaining <= 0 {
		return nil, ErrTimeout
	}

	return t.inner.Exchange(ctx, server, request, remaining)
}

func (t *RateLimitedTransport) limiterFor(server Server) *rate.Limiter {
	key := server.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.perServer[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(t.perServerRate), t.burstSize)
		t.perServer[key] = limiter
	}
	return limiter
}
