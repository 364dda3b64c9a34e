package ntp

import "time"

// Wire format constants
const (
	// PacketSize is the size of every request and response datagram
	PacketSize = 48

	// ClientModeMarker is the first request byte: LI=0, VN=3, Mode=3 (client)
	ClientModeMarker = 0x1B

	// TransmitTimestampOffset is where the server's transmit timestamp starts
	TransmitTimestampOffset = 40

	// DefaultPort is the standard time-protocol UDP port
	DefaultPort = 123
)

// Query behavior constants
const (
	// DefaultTimeout is the default deadline for a single exchange
	DefaultTimeout = 10 * time.Second

	// DefaultProbeVersion is the protocol version used by diagnostic probes
	DefaultProbeVersion = 4
)

// Validation thresholds used by diagnostic probes
const (
	// MaxAcceptableRTT is the maximum acceptable round-trip time
	MaxAcceptableRTT = 10 * time.Second

	// SuspiciousOffsetThreshold is the threshold for suspicious offsets
	SuspiciousOffsetThreshold = 3600 * time.Second // 1 hour

	// MinValidStratum is the minimum valid stratum value
	MinValidStratum = 1

	// MaxValidStratum is the maximum valid stratum value
	MaxValidStratum = 15
)

// ntpEpoch is the protocol's time origin
var ntpEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
