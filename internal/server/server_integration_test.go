package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/maximewewer/ntp-sync/internal/config"
	"github.com/maximewewer/ntp-sync/internal/ntp"
	"github.com/maximewewer/ntp-sync/internal/timesync"
	"github.com/maximewewer/ntp-sync/pkg/metrics"
	testutil "github.com/maximewewer/ntp-sync/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	serverA = ntp.Server{Host: "a.example.org", Port: 123}
	serverB = ntp.Server{Host: "b.example.org", Port: 123}
)

type testStack struct {
	engine    *timesync.Engine
	transport *ntp.MockTransport
	registry  *metrics.Registry
	baseURL   string
}

// newTestStack wires a real engine over a mock transport behind the full
// handler chain
func newTestStack(t *testing.T) *testStack {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Sync.Servers = []string{serverA.String(), serverB.String()}
	cfg.Sync.OnCreation = false
	cfg.Sync.AutoSync = false

	transport := ntp.NewMockTransport()
	transport.SetupOffsetServer(serverA, 250*time.Millisecond)
	transport.SetupOffsetServer(serverB, 250*time.Millisecond)

	registry := metrics.NewRegistry()
	registry.MustRegister()

	engineCfg, err := cfg.ToEngineConfig()
	require.NoError(t, err)
	engineCfg.SyncTimeout = time.Second

	engine, err := timesync.New(engineCfg, transport, timesync.WithRecorder(registry.GetMetrics()))
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := New(cfg, engine, nil, registry.GetRegistry(), registry.GetMetrics())
	httpServer := testutil.NewTestHTTPServer(t, srv.Handler())

	return &testStack{
		engine:    engine,
		transport: transport,
		registry:  registry,
		baseURL:   httpServer.URL,
	}
}

func (s *testStack) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, s.baseURL+path, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServer_SyncThenTime(t *testing.T) {
	stack := newTestStack(t)

	resp, body := stack.do(t, http.MethodPost, "/sync")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var syncResp SyncResponse
	require.NoError(t, json.Unmarshal(body, &syncResp))
	assert.True(t, syncResp.Success)
	assert.InDelta(t, 250, syncResp.OffsetMs, 50)

	resp, body = stack.do(t, http.MethodGet, "/time")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var timeResp TimeResponse
	require.NoError(t, json.Unmarshal(body, &timeResp))
	assert.Equal(t, syncResp.OffsetMs, timeResp.OffsetMs)
	assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), timeResp.Time, time.Second)
}

func TestServer_SyncWhileAttemptInFlight(t *testing.T) {
	stack := newTestStack(t)
	stack.transport.SetDelay(serverA, 300*time.Millisecond)

	done := make(chan bool, 1)
	go func() {
		done <- stack.engine.SyncTime(context.Background())
	}()
	require.Eventually(t, func() bool {
		return stack.transport.GetCallCount(serverA) == 1
	}, time.Second, time.Millisecond)

	resp, body := stack.do(t, http.MethodPost, "/sync")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "in progress")

	assert.True(t, <-done)
	history := stack.engine.GetHistory()
	assert.Nil(t, history.LastError)
	assert.Zero(t, history.LifetimeErrorCount)
}

func TestServer_FailureRotatesAndDegradesHealth(t *testing.T) {
	stack := newTestStack(t)
	stack.transport.SetupTimeoutServer(serverA)

	resp, body := stack.do(t, http.MethodPost, "/sync")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var syncResp SyncResponse
	require.NoError(t, json.Unmarshal(body, &syncResp))
	assert.False(t, syncResp.Success)
	require.NotNil(t, syncResp.LastError)
	assert.Equal(t, ntp.KindTimeout, syncResp.LastError.Kind)
	assert.Equal(t, serverA, syncResp.LastError.Server)
	assert.Equal(t, serverA, syncResp.Server)
	assert.Equal(t, serverB, stack.engine.GetHistory().CurrentServer)

	resp, _ = stack.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = stack.do(t, http.MethodPost, "/sync")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = stack.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	testutil.AssertMetricValue(t, stack.registry.GetRegistry(), "ntp_sync_failures_total",
		map[string]string{"server": serverA.String(), "kind": "timeout"}, 1)
	testutil.AssertMetricValue(t, stack.registry.GetRegistry(), "ntp_sync_current_server",
		map[string]string{"server": serverB.String()}, 1)
}

func TestServer_OnlineToggle(t *testing.T) {
	stack := newTestStack(t)

	resp, _ := stack.do(t, http.MethodPost, "/online?state=false")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, stack.engine.IsOnline())

	resp, _ = stack.do(t, http.MethodPost, "/sync")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 0, stack.transport.TotalCalls())

	resp, _ = stack.do(t, http.MethodPost, "/online?state=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, stack.engine.IsOnline())

	// Going online syncs once
	assert.Equal(t, 1, stack.transport.TotalCalls())
	testutil.AssertMetricValue(t, stack.registry.GetRegistry(), "ntp_sync_online", nil, 1)
}

func TestServer_HistoryAndServers(t *testing.T) {
	stack := newTestStack(t)
	stack.do(t, http.MethodPost, "/sync")
	stack.do(t, http.MethodPost, "/sync")

	resp, body := stack.do(t, http.MethodGet, "/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history HistoryResponse
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Len(t, history.History.Deltas, 2)
	assert.Equal(t, 2, history.Statistics.SamplesCount)

	resp, body = stack.do(t, http.MethodGet, "/servers")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var servers ServersResponse
	require.NoError(t, json.Unmarshal(body, &servers))
	assert.Equal(t, []ntp.Server{serverA, serverB}, servers.Servers)
	assert.Equal(t, serverA, servers.Current)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	stack := newTestStack(t)

	resp, _ := stack.do(t, http.MethodGet, "/sync")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = stack.do(t, http.MethodGet, "/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MetricsFormat(t *testing.T) {
	stack := newTestStack(t)
	stack.do(t, http.MethodGet, "/time")

	resp, body := stack.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text := string(body)
	assert.True(t, strings.Contains(text, "# HELP"), "Should have HELP comments")
	assert.True(t, strings.Contains(text, "# TYPE"), "Should have TYPE comments")
	assert.Contains(t, text, `ntp_sync_http_requests_total{code="200",path="/time"} 1`)
}

func TestServer_GracefulShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 0

	srv := New(cfg, newFakeEngine(), nil, metrics.NewRegistry().GetRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
