package ntp

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/maximewewer/ntp-sync/pkg/logger"
)

// UDPTransport exchanges datagrams over a fresh UDP socket per attempt
type UDPTransport struct {
	dialer   *net.Dialer
	dnsCache *DNSCache
}

// NewUDPTransport creates a UDP transport. A nil cache disables hostname caching.
func NewUDPTransport(dnsCache *DNSCache) *UDPTransport {
	return &UDPTransport{
		dialer:   &net.Dialer{},
		dnsCache: dnsCache,
	}
}

// exchangeResult is the outcome delivered by whichever path settles first
type exchangeResult struct {
	data []byte
	err  error
}

// arbiter is a single-shot guard: only the first settle call is delivered,
// every later one is dropped.
type arbiter struct {
	settled atomic.Bool
	ch      chan exchangeResult
}

func newArbiter() *arbiter {
	return &arbiter{ch: make(chan exchangeResult, 1)}
}

func (a *arbiter) settle(r exchangeResult) bool {
	if !a.settled.CompareAndSwap(false, true) {
		return false
	}
	a.ch <- r
	return true
}

// Exchange sends request to server and waits for one response, the timeout,
// or a transport error, whichever happens first.
func (t *UDPTransport) Exchange(ctx context.Context, server Server, request []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr, err := t.resolve(ctx, server)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &TransportError{Op: "resolve", Server: server, Err: err}
	}

	conn, err := t.dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &TransportError{Op: "dial", Server: server, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	a := newArbiter()

	go func() {
		if _, err := conn.Write(request); err != nil {
			a.settle(exchangeResult{err: &TransportError{Op: "send", Server: server, Err: err}})
			return
		}

		bufPtr := GetReadBuffer()
		defer PutReadBuffer(bufPtr)

		n, err := conn.Read(*bufPtr)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				a.settle(exchangeResult{err: ErrTimeout})
				return
			}
			a.settle(exchangeResult{err: &TransportError{Op: "receive", Server: server, Err: err}})
			return
		}

		resp := make([]byte, n)
		copy(resp, (*bufPtr)[:n])
		a.settle(exchangeResult{data: resp})
	}()

	select {
	case r := <-a.ch:
		return r.data, r.err
	case <-ctx.Done():
		var err error = ErrTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			err = &TransportError{Op: "exchange", Server: server, Err: ctx.Err()}
		}
		if !a.settle(exchangeResult{err: err}) {
			logger.SafeDebug("ntp", "Response won the race against the deadline", map[string]interface{}{
				"server": server.String(),
			})
		}
		r := <-a.ch
		return r.data, r.err
	}
}

// resolve returns the dial address for server, going through the cache when set
func (t *UDPTransport) resolve(ctx context.Context, server Server) (string, error) {
	port := strconv.Itoa(server.Port)
	if t.dnsCache == nil {
		return net.JoinHostPort(server.Host, port), nil
	}

	ips, err := t.dnsCache.Resolve(ctx, server.Host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errors.New("no addresses for " + server.Host)
	}

	return net.JoinHostPort(ips[0], port), nil
}
