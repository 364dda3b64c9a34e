package ntp

import (
	"encoding/binary"
	"math"
	"time"
)

// fracDenominator is 2^32, the denominator of the fractional-seconds field
const fracDenominator = 4294967296.0

// BuildRequest returns a client-mode request datagram.
func BuildRequest() []byte {
	req := make([]byte, PacketSize)
	req[0] = ClientModeMarker
	return req
}

// ParseResponse extracts the server transmit timestamp from a response datagram.
//
// The timestamp is computed as whole seconds plus the fractional part in
// floating point, then added to the 1900 epoch. Callers round to whole
// milliseconds when they store the value.
func ParseResponse(b []byte) (time.Time, error) {
	if len(b) < PacketSize {
		return time.Time{}, &MalformedResponseError{Length: len(b)}
	}

	intPart := binary.BigEndian.Uint32(b[TransmitTimestampOffset:])
	fracPart := binary.BigEndian.Uint32(b[TransmitTimestampOffset+4:])

	ms := float64(intPart)*1000 + float64(fracPart)*1000/fracDenominator

	return ntpEpoch.Add(time.Duration(math.Round(ms * float64(time.Millisecond)))), nil
}

// EncodeTimestamp writes t as a transmit timestamp into a response-sized
// packet. It is the inverse of ParseResponse and is used by test servers.
func EncodeTimestamp(t time.Time) []byte {
	b := make([]byte, PacketSize)
	b[0] = 0x1C // LI=0, VN=3, Mode=4 (server)

	elapsed := t.Sub(ntpEpoch)
	secs := elapsed / time.Second
	frac := (elapsed - secs*time.Second) << 32 / time.Second

	binary.BigEndian.PutUint32(b[TransmitTimestampOffset:], uint32(secs))
	binary.BigEndian.PutUint32(b[TransmitTimestampOffset+4:], uint32(frac))
	return b
}
