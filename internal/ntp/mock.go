package ntp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockTransport is a scripted Transport for tests
type MockTransport struct {
	mu          sync.RWMutex
	responses   map[string][]byte
	offsets     map[string]time.Duration
	errors      map[string]error
	delays      map[string]time.Duration
	callCounts  map[string]int
	flapping    map[string]bool
	flapCounter map[string]int
	now         func() time.Time
}

// NewMockTransport creates an empty mock; unconfigured servers fail with a TransportError
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses:   make(map[string][]byte),
		offsets:     make(map[string]time.Duration),
		errors:      make(map[string]error),
		delays:      make(map[string]time.Duration),
		callCounts:  make(map[string]int),
		flapping:    make(map[string]bool),
		flapCounter: make(map[string]int),
		now:         time.Now,
	}
}

// Exchange performs a mock exchange
func (m *MockTransport) Exchange(ctx context.Context, server Server, request []byte, timeout time.Duration) ([]byte, error) {
	key := server.String()

	m.mu.Lock()
	m.callCounts[key]++
	delay, hasDelay := m.delays[key]
	m.mu.Unlock()

	if hasDelay {
		if timeout > 0 && delay >= timeout {
			select {
			case <-time.After(timeout):
				return nil, ErrTimeout
			case <-ctx.Done():
				return nil, ErrTimeout
			}
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrTimeout
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.flapping[key] {
		m.flapCounter[key]++
		if m.flapCounter[key]%2 == 0 {
			return nil, &TransportError{Op: "receive", Server: server, Err: errors.New("connection refused")}
		}
	}

	if err, ok := m.errors[key]; ok {
		return nil, err
	}

	if offset, ok := m.offsets[key]; ok {
		return EncodeTimestamp(m.now().Add(offset)), nil
	}

	if resp, ok := m.responses[key]; ok {
		out := make([]byte, len(resp))
		copy(out, resp)
		return out, nil
	}

	return nil, &TransportError{Op: "dial", Server: server, Err: errors.New("server not configured in mock")}
}

// SetClock sets the clock used to stamp offset-based responses
func (m *MockTransport) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

// SetupOffsetServer answers with the mock clock shifted by offset
func (m *MockTransport) SetupOffsetServer(server Server, offset time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.errors, server.String())
	m.offsets[server.String()] = offset
}

// SetupTimeoutServer makes every exchange with server time out
func (m *MockTransport) SetupTimeoutServer(server Server) {
	m.SetError(server, ErrTimeout)
}

// SetupUnreachableServer makes every exchange with server fail below the protocol layer
func (m *MockTransport) SetupUnreachableServer(server Server) {
	m.SetError(server, &TransportError{Op: "send", Server: server, Err: errors.New("network is unreachable")})
}

// SetupFlappingServer alternates success and failure, starting with success
func (m *MockTransport) SetupFlappingServer(server Server, offset time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flapping[server.String()] = true
	m.flapCounter[server.String()] = 0
	m.offsets[server.String()] = offset
}

// SetError sets a custom error for a server
func (m *MockTransport) SetError(server Server, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errors[server.String()] = err
}

// SetResponse sets raw response bytes for a server
func (m *MockTransport) SetResponse(server Server, resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.offsets, server.String())
	m.responses[server.String()] = resp
}

// SetDelay sets a delay before responding
func (m *MockTransport) SetDelay(server Server, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.delays[server.String()] = delay
}

// GetCallCount returns how many exchanges were attempted with server
func (m *MockTransport) GetCallCount(server Server) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.callCounts[server.String()]
}

// TotalCalls returns the number of exchanges across all servers
func (m *MockTransport) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, n := range m.callCounts {
		total += n
	}
	return total
}

// Reset clears all mock configurations
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses = make(map[string][]byte)
	m.offsets = make(map[string]time.Duration)
	m.errors = make(map[string]error)
	m.delays = make(map[string]time.Duration)
	m.callCounts = make(map[string]int)
	m.flapping = make(map[string]bool)
	m.flapCounter = make(map[string]int)
}

// MockProber is a scripted Querier for tests
type MockProber struct {
	mu      sync.Mutex
	results map[string]*ProbeResult
	calls   int
}

// NewMockProber creates an empty mock prober
func NewMockProber() *MockProber {
	return &MockProber{results: make(map[string]*ProbeResult)}
}

// SetResult configures the result for a server
func (m *MockProber) SetResult(server Server, r *ProbeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[server.String()] = r
}

// Calls returns how many probes ran
func (m *MockProber) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls
}

// Probe returns the configured result or an error
func (m *MockProber) Probe(ctx context.Context, server Server) (*ProbeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if r, ok := m.results[server.String()]; ok {
		cp := *r
		cp.Server = server
		return &cp, nil
	}
	return &ProbeResult{Server: server, Error: "unreachable"}, errors.New("unreachable")
}
