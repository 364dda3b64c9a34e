package ntp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_OffsetServer(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	server := Server{Host: "a.example.org", Port: 123}

	mock := NewMockTransport()
	mock.SetClock(func() time.Time { return fixed })
	mock.SetupOffsetServer(server, 1500*time.Millisecond)

	resp, err := mock.Exchange(context.Background(), server, BuildRequest(), time.Second)
	require.NoError(t, err)

	got, err := ParseResponse(resp)
	require.NoError(t, err)
	assert.WithinDuration(t, fixed.Add(1500*time.Millisecond), got, time.Millisecond)
	assert.Equal(t, 1, mock.GetCallCount(server))
}

func TestMockTransport_Unconfigured(t *testing.T) {
	_, err := NewMockTransport().Exchange(context.Background(), Server{Host: "x", Port: 1}, BuildRequest(), time.Second)
	assert.Equal(t, KindTransport, ErrorKind(err))
}

func TestMockTransport_Failures(t *testing.T) {
	timeout := Server{Host: "timeout.example.org", Port: 123}
	unreachable := Server{Host: "unreachable.example.org", Port: 123}

	mock := NewMockTransport()
	mock.SetupTimeoutServer(timeout)
	mock.SetupUnreachableServer(unreachable)

	_, err := mock.Exchange(context.Background(), timeout, BuildRequest(), time.Second)
	assert.Equal(t, KindTimeout, ErrorKind(err))

	_, err = mock.Exchange(context.Background(), unreachable, BuildRequest(), time.Second)
	assert.Equal(t, KindTransport, ErrorKind(err))

	// Reconfiguring with an offset clears the error
	mock.SetupOffsetServer(timeout, 0)
	_, err = mock.Exchange(context.Background(), timeout, BuildRequest(), time.Second)
	assert.NoError(t, err)
}

func TestMockTransport_Flapping(t *testing.T) {
	server := Server{Host: "flaky.example.org", Port: 123}
	mock := NewMockTransport()
	mock.SetupFlappingServer(server, 0)

	var outcomes []bool
	for i := 0; i < 4; i++ {
		_, err := mock.Exchange(context.Background(), server, BuildRequest(), time.Second)
		outcomes = append(outcomes, err == nil)
	}

	assert.Equal(t, []bool{true, false, true, false}, outcomes)
}

func TestMockTransport_DelayBeyondTimeout(t *testing.T) {
	server := Server{Host: "slow.example.org", Port: 123}
	mock := NewMockTransport()
	mock.SetupOffsetServer(server, 0)
	mock.SetDelay(server, time.Hour)

	start := time.Now()
	_, err := mock.Exchange(context.Background(), server, BuildRequest(), 30*time.Millisecond)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMockTransport_ResponseAndReset(t *testing.T) {
	server := Server{Host: "raw.example.org", Port: 123}
	mock := NewMockTransport()
	mock.SetResponse(server, []byte{1, 2, 3})

	resp, err := mock.Exchange(context.Background(), server, BuildRequest(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, resp)
	assert.Equal(t, 1, mock.TotalCalls())

	mock.Reset()
	assert.Zero(t, mock.TotalCalls())
	_, err = mock.Exchange(context.Background(), server, BuildRequest(), time.Second)
	assert.Error(t, err)
}
