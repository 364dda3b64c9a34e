package ntp

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"
	"github.com/maximewewer/ntp-sync/pkg/logger"
	"github.com/maximewewer/ntp-sync/pkg/mathutil"
)

// ProbeResult is the full-protocol view of one server, used for diagnostics
// only. The sync path never depends on it.
type ProbeResult struct {
	Server        Server        `json:"server"`
	Reachable     bool          `json:"reachable"`
	Offset        time.Duration `json:"offset_ns"`
	RTT           time.Duration `json:"rtt_ns"`
	Stratum       uint8         `json:"stratum"`
	LeapIndicator uint8         `json:"leap_indicator"`
	ReferenceID   uint32        `json:"reference_id"`
	KissCode      string        `json:"kiss_code,omitempty"`
	Suspicious    bool          `json:"suspicious"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// Querier runs a full protocol query against one server
type Querier interface {
	Probe(ctx context.Context, server Server) (*ProbeResult, error)
}

// Prober queries servers with github.com/beevik/ntp
type Prober struct {
	timeout time.Duration
	version int
	query   func(address string, opts ntp.QueryOptions) (*ntp.Response, error)
}

// NewProber creates a prober
func NewProber(timeout time.Duration, version int) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if version == 0 {
		version = DefaultProbeVersion
	}
	return &Prober{
		timeout: timeout,
		version: version,
		query:   ntp.QueryWithOptions,
	}
}

// Probe queries a single server. The returned error is also recorded in the result.
func (p *Prober) Probe(ctx context.Context, server Server) (*ProbeResult, error) {
	start := time.Now()
	result := &ProbeResult{Server: server}

	type queryResult struct {
		response *ntp.Response
		err      error
	}

	// Buffered so the query goroutine never blocks after a cancellation
	resultChan := make(chan queryResult, 1)
	go func() {
		resp, err := p.query(server.String(), ntp.QueryOptions{
			Timeout: p.timeout,
			Version: p.version,
		})
		resultChan <- queryResult{response: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		result.Duration = time.Since(start)
		result.Error = ctx.Err().Error()
		return result, fmt.Errorf("probe of %s cancelled: %w", server, ctx.Err())
	case r := <-resultChan:
		result.Duration = time.Since(start)
		if r.err != nil {
			result.Error = r.err.Error()
			logger.SafeDebug("ntp", "Probe failed", map[string]interface{}{
				"server": server.String(),
				"error":  r.err.Error(),
			})
			return result, fmt.Errorf("probe of %s failed: %w", server, r.err)
		}

		resp := r.response
		result.Reachable = true
		result.Offset = resp.ClockOffset
		result.RTT = resp.RTT
		result.Stratum = resp.Stratum
		result.LeapIndicator = uint8(resp.Leap)
		result.ReferenceID = resp.ReferenceID
		result.KissCode = resp.KissCode
		result.Suspicious = isSuspicious(result, resp.Validate())

		return result, nil
	}
}

// isSuspicious flags answers a careful client would not trust
func isSuspicious(r *ProbeResult, validateErr error) bool {
	switch {
	case validateErr != nil:
		return true
	case r.KissCode != "":
		return true
	case r.Stratum < MinValidStratum || r.Stratum > MaxValidStratum:
		return true
	case mathutil.AbsDuration(r.Offset) > SuspiciousOffsetThreshold:
		return true
	case r.RTT > MaxAcceptableRTT:
		return true
	}
	return false
}
