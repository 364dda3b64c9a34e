package ntp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrTimeout is returned when no response arrives before the exchange deadline
var ErrTimeout = errors.New("timed out waiting for response")

// Error kinds reported in history records
const (
	KindTimeout   = "timeout"
	KindTransport = "transport"
	KindMalformed = "malformed"
	KindUnknown   = "unknown"
)

// TransportError is a send/receive failure below the protocol layer
type TransportError struct {
	Op     string
	Server Server
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Server, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a response that cannot be decoded
type MalformedResponseError struct {
	Length int
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: got " + strconv.Itoa(e.Length) + " bytes, want at least " + strconv.Itoa(PacketSize)
}

// ErrorKind classifies err into one of the Kind constants
func ErrorKind(err error) string {
	var malformed *MalformedResponseError
	var transport *TransportError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &malformed):
		return KindMalformed
	case errors.As(err, &transport):
		return KindTransport
	default:
		return KindUnknown
	}
}
