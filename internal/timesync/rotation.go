package timesync

import "github.com/maximewewer/ntp-sync/internal/ntp"

// ServerRotation is an immutable server list with a cursor that moves to the
// next entry after a failure
type ServerRotation struct {
	servers []ntp.Server
	cursor  int
}

// NewServerRotation copies servers; the list must not be empty
func NewServerRotation(servers []ntp.Server) *ServerRotation {
	list := make([]ntp.Server, len(servers))
	copy(list, servers)
	return &ServerRotation{servers: list}
}

// Current returns the preferred server
func (r *ServerRotation) Current() ntp.Server {
	return r.servers[r.cursor]
}

// AdvanceOnFailure moves to the next server, wrapping around. Single-entry
// lists stay put.
func (r *ServerRotation) AdvanceOnFailure() {
	if len(r.servers) > 1 {
		r.cursor = (r.cursor + 1) % len(r.servers)
	}
}

// Servers returns a copy of the list
func (r *ServerRotation) Servers() []ntp.Server {
	out := make([]ntp.Server, len(r.servers))
	copy(out, r.servers)
	return out
}

// Len returns the number of servers
func (r *ServerRotation) Len() int {
	return len(r.servers)
}
