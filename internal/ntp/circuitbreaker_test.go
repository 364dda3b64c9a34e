package ntp

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	config := DefaultCircuitBreakerConfig()

	assert.Equal(t, uint32(3), config.MaxRequests)
	assert.Equal(t, 60*time.Second, config.Interval)
	assert.Equal(t, 30*time.Second, config.Timeout)
	require.NotNil(t, config.ReadyToTrip)

	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"too_few_requests", gobreaker.Counts{Requests: 2, TotalFailures: 2}, false},
		{"at_threshold", gobreaker.Counts{Requests: 10, TotalFailures: 6}, true},
		{"below_threshold", gobreaker.Counts{Requests: 10, TotalFailures: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, config.ReadyToTrip(tt.counts))
		})
	}
}

func TestNewCircuitBreakerTransport_EmptyConfigUsesDefaults(t *testing.T) {
	cb := NewCircuitBreakerTransport(NewMockTransport(), CircuitBreakerConfig{})

	assert.Equal(t, uint32(3), cb.config.MaxRequests)
	assert.NotNil(t, cb.config.ReadyToTrip)
}

func TestCircuitBreakerTransport_Success(t *testing.T) {
	mock := NewMockTransport()
	server := Server{Host: "good.example.org", Port: 123}
	mock.SetupOffsetServer(server, 0)

	cb := NewCircuitBreakerTransport(mock, DefaultCircuitBreakerConfig())

	resp, err := cb.Exchange(context.Background(), server, BuildRequest(), time.Second)

	require.NoError(t, err)
	assert.Len(t, resp, PacketSize)
	assert.Equal(t, gobreaker.StateClosed, cb.State(server))
}

func TestCircuitBreakerTransport_OpensAfterFailures(t *testing.T) {
	mock := NewMockTransport()
	server := Server{Host: "bad.example.org", Port: 123}
	mock.SetupTimeoutServer(server)

	cb := NewCircuitBreakerTransport(mock, NewCircuitBreakerConfigWithThreshold(1, time.Minute, time.Minute, 0.5))

	for i := 0; i < 3; i++ {
		_, err := cb.Exchange(context.Background(), server, BuildRequest(), time.Second)
		assert.ErrorIs(t, err, ErrTimeout, "inner errors pass through unchanged")
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State(server))

	_, err := cb.Exchange(context.Background(), server, BuildRequest(), time.Second)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "circuit breaker", transportErr.Op)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, mock.GetCallCount(server), "open breaker must not reach the network")
}

func TestCircuitBreakerTransport_PerServerIsolation(t *testing.T) {
	mock := NewMockTransport()
	bad := Server{Host: "bad.example.org", Port: 123}
	good := Server{Host: "good.example.org", Port: 123}
	mock.SetupUnreachableServer(bad)
	mock.SetupOffsetServer(good, 0)

	cb := NewCircuitBreakerTransport(mock, NewCircuitBreakerConfigWithThreshold(1, time.Minute, time.Minute, 0.5))

	for i := 0; i < 3; i++ {
		_, _ = cb.Exchange(context.Background(), bad, BuildRequest(), time.Second)
	}

	_, err := cb.Exchange(context.Background(), good, BuildRequest(), time.Second)
	require.NoError(t, err)

	states := cb.States()
	assert.Equal(t, gobreaker.StateOpen, states[bad.String()])
	assert.Equal(t, gobreaker.StateClosed, states[good.String()])
}

func TestCircuitBreakerTransport_UnknownServerIsClosed(t *testing.T) {
	cb := NewCircuitBreakerTransport(NewMockTransport(), DefaultCircuitBreakerConfig())

	assert.Equal(t, gobreaker.StateClosed, cb.State(Server{Host: "never.example.org", Port: 123}))
	assert.Empty(t, cb.States())
}
