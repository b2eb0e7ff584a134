// Package endpoint resolves the daemon control address and the start request handed to the supervisor.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// Kind identifies which control contract an endpoint speaks
type Kind string

const (
	// KindRPC is the gRPC control channel
	KindRPC Kind = "rpc"
	// KindHTTP is the HTTP-compatible control channel
	KindHTTP Kind = "http"
)

// Transport networks
const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"
)

// ErrEmptyAddress is returned when no control address could be determined
var ErrEmptyAddress = errors.New("empty control address")

// Endpoint is the control channel address of one daemon run
type Endpoint struct {
	// Raw is the address exactly as it is passed to the daemon with -proto
	Raw     string `json:"raw"`
	Kind    Kind   `json:"kind"`
	Network string `json:"network"`
	// Address is host:port for tcp and a filesystem path for unix
	Address string `json:"address"`
}

// Parse classifies a control address.
//
// Addresses starting with "/" or "unix://" are unix sockets. An "http://" scheme selects the
// HTTP-compatible contract; everything else is a gRPC host:port.
func Parse(addr string) (Endpoint, error) {
	raw := strings.TrimSpace(addr)
	if raw == "" {
		return Endpoint{}, ErrEmptyAddress
	}

	ep := Endpoint{Raw: raw, Kind: KindRPC, Network: NetworkTCP}
	rest := raw

	switch {
	case strings.HasPrefix(rest, "unix://"):
		ep.Network = NetworkUnix
		rest = strings.TrimPrefix(rest, "unix://")
	case strings.HasPrefix(rest, "/"):
		ep.Network = NetworkUnix
	case strings.HasPrefix(rest, "http://"):
		ep.Kind = KindHTTP
		rest = strings.TrimSuffix(strings.TrimPrefix(rest, "http://"), "/")
	case strings.HasPrefix(rest, "tcp://"):
		rest = strings.TrimPrefix(rest, "tcp://")
	}

	if ep.Network == NetworkUnix {
		if rest == "" {
			return Endpoint{}, fmt.Errorf("unix address %q: %w", raw, ErrEmptyAddress)
		}
		ep.Address = filepath.Clean(rest)
		return ep, nil
	}

	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid control address %q: %w", raw, err)
	}
	if port == "" {
		return Endpoint{}, fmt.Errorf("invalid control address %q: missing port", raw)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	ep.Address = net.JoinHostPort(host, port)
	return ep, nil
}

// GRPCTarget returns the dial target understood by grpc.NewClient
func (e Endpoint) GRPCTarget() string {
	if e.Network == NetworkUnix {
		return "unix://" + e.Address
	}
	return "passthrough:///" + e.Address
}

// BaseURL returns the root URL of an HTTP-compatible endpoint.
// Unix endpoints use a placeholder host; the transport dials the socket.
func (e Endpoint) BaseURL() string {
	if e.Network == NetworkUnix {
		return "http://unix"
	}
	return "http://" + e.Address
}

// String implements fmt.Stringer
func (e Endpoint) String() string {
	return fmt.Sprintf("%s+%s://%s", e.Kind, e.Network, e.Address)
}
