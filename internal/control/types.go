// Package control is the bridge's client for the daemon's control channel.
//
// A client speaks either the gRPC contract or its HTTP-compatible twin. Connect fixes the
// client's Capability: CapabilityRich when the daemon implements the status contract,
// CapabilityLiveness when only channel reachability can be observed.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Capability describes what a connected client can observe
type Capability int

const (
	CapabilityUnknown Capability = iota
	CapabilityRich
	CapabilityLiveness
)

func (c Capability) String() string {
	switch c {
	case CapabilityRich:
		return "rich"
	case CapabilityLiveness:
		return "liveness"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Source tells where a NodeStatus came from
type Source string

const (
	// SourceRPC is a status reported by the daemon itself
	SourceRPC Source = "rpc"
	// SourceLiveness is channel reachability only
	SourceLiveness Source = "liveness"
)

// NodeStatus is one observation of the daemon
type NodeStatus struct {
	Running    bool            `json:"running"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ObservedAt time.Time       `json:"observed_at"`
	Source     Source          `json:"source"`
}

// PeerInfo identifies the daemon on the peer network
type PeerInfo struct {
	PeerID    string   `json:"peerId"`
	Addresses []string `json:"addrs"`
}

// Empty reports whether no identity is known
func (p PeerInfo) Empty() bool {
	return p.PeerID == "" && len(p.Addresses) == 0
}

var (
	// ErrNotConnected is returned by queries on a client that is not connected
	ErrNotConnected = errors.New("control channel not connected")

	// ErrContractAbsent is returned for rich-only queries on a liveness client
	ErrContractAbsent = errors.New("daemon does not implement the control contract")
)

// UnavailableError means the daemon could not be reached
type UnavailableError struct {
	Target string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("control channel %s unavailable: %v", e.Target, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Client talks to one daemon control endpoint
type Client interface {
	// Connect opens the channel and fixes the capability. It is a no-op when already connected.
	Connect(ctx context.Context) error
	Status(ctx context.Context) (NodeStatus, error)
	// PeerInfo returns an empty PeerInfo on any failure
	PeerInfo(ctx context.Context) PeerInfo
	KnownPeers(ctx context.Context) ([]PeerInfo, error)
	Capability() Capability
	// Disconnect closes the channel. It is safe to call more than once.
	Disconnect() error
}
