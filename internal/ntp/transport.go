package ntp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Server is a candidate time server
type Server struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// String returns host:port
func (s Server) String() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ParseServer parses "host", "host:port" or "[v6]:port". A missing port
// defaults to DefaultPort.
func ParseServer(s string) (Server, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Server{}, fmt.Errorf("empty server address")
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port component
		return Server{Host: strings.Trim(s, "[]"), Port: DefaultPort}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Server{}, fmt.Errorf("invalid port in server address %q", s)
	}

	return Server{Host: host, Port: port}, nil
}

// Transport sends one request datagram to a server and returns the single
// response datagram, or fails with ErrTimeout or a *TransportError.
type Transport interface {
	Exchange(ctx context.Context, server Server, request []byte, timeout time.Duration) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, server Server, request []byte, timeout time.Duration) ([]byte, error)

// Exchange calls f
func (f TransportFunc) Exchange(ctx context.Context, server Server, request []byte, timeout time.Duration) ([]byte, error) {
	return f(ctx, server, request, timeout)
}
