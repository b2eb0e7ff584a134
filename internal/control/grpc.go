package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/apps78/cotune-bridge/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// GRPCClient speaks the cotune.CotuneService contract
type GRPCClient struct {
	ep   endpoint.Endpoint
	opts Options
	log  logger.Logger

	mu         sync.RWMutex
	conn       *grpc.ClientConn
	capability Capability
}

var _ Client = (*GRPCClient)(nil)

// NewGRPCClient creates an unconnected gRPC client
func NewGRPCClient(ep endpoint.Endpoint, opts Options) *GRPCClient {
	opts = opts.withDefaults()
	return &GRPCClient{
		ep:   ep,
		opts: opts,
		log:  opts.Logger.WithField(logger.EndpointKey, ep.String()),
	}
}

// Connect opens the channel and probes the Status RPC to fix the capability
func (c *GRPCClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.GetState() != connectivity.Shutdown {
		return nil
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wireCodec{})),
	}, c.opts.DialOptions...)

	conn, err := grpc.NewClient(c.ep.GRPCTarget(), dialOpts...)
	if err != nil {
		return &UnavailableError{Target: c.ep.String(), Err: err}
	}

	capability := c.opts.forced()
	if capability == CapabilityUnknown {
		capability, err = c.probe(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return err
		}
	}

	c.conn = conn
	c.capability = capability
	c.log.WithField("capability", capability.String()).Debug("Control channel connected")
	return nil
}

func (c *GRPCClient) probe(ctx context.Context, conn *grpc.ClientConn) (Capability, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	var resp StatusResponse
	err := conn.Invoke(callCtx, methodStatus, &statusRequest{}, &resp)
	switch status.Code(err) {
	case codes.OK:
		return CapabilityRich, nil
	case codes.Unimplemented:
		c.log.Info("Daemon does not implement the control contract, using liveness only")
		return CapabilityLiveness, nil
	default:
		return CapabilityUnknown, &UnavailableError{Target: c.ep.String(), Err: err}
	}
}

func (c *GRPCClient) binding() (*grpc.ClientConn, Capability, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, CapabilityUnknown, ErrNotConnected
	}
	return c.conn, c.capability, nil
}

// stale reports whether conn was disconnected while a call was in flight
func (c *GRPCClient) stale(conn *grpc.ClientConn) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != conn
}

// Status returns the daemon status, or channel liveness for liveness clients
func (c *GRPCClient) Status(ctx context.Context) (NodeStatus, error) {
	conn, capability, err := c.binding()
	if err != nil {
		return NodeStatus{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	if capability == CapabilityLiveness {
		st := c.liveness(callCtx, conn)
		if c.stale(conn) {
			return NodeStatus{}, ErrNotConnected
		}
		return st, nil
	}

	var resp StatusResponse
	err = conn.Invoke(callCtx, methodStatus, &statusRequest{}, &resp)
	if c.stale(conn) {
		return NodeStatus{}, ErrNotConnected
	}
	if err != nil {
		return NodeStatus{}, fmt.Errorf("status rpc: %w", err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return NodeStatus{}, fmt.Errorf("encode status: %w", err)
	}
	return NodeStatus{
		Running:    resp.Running,
		Raw:        raw,
		ObservedAt: time.Now(),
		Source:     SourceRPC,
	}, nil
}

// liveness checks the standard health service, falling back to the connection state when
// the daemon does not register one
func (c *GRPCClient) liveness(ctx context.Context, conn *grpc.ClientConn) NodeStatus {
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})

	var reachable bool
	switch {
	case err == nil:
		reachable = resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
	case status.Code(err) == codes.Unimplemented:
		reachable = conn.GetState() == connectivity.Ready
	default:
		c.log.WithField(logger.ErrorKey, err).Debug("Liveness probe failed")
	}

	return livenessStatus(reachable)
}

func livenessStatus(reachable bool) NodeStatus {
	raw, _ := json.Marshal(map[string]interface{}{
		"running":  reachable,
		"liveness": true,
	})
	return NodeStatus{
		Running:    reachable,
		Raw:        raw,
		ObservedAt: time.Now(),
		Source:     SourceLiveness,
	}
}

// PeerInfo asks the daemon for its identity; failures yield an empty PeerInfo
func (c *GRPCClient) PeerInfo(ctx context.Context) PeerInfo {
	conn, capability, err := c.binding()
	if err != nil || capability != CapabilityRich {
		return PeerInfo{}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	var resp peerInfoResponse
	if err := conn.Invoke(callCtx, methodPeerInfo, &peerInfoRequest{Format: peerInfoFormat}, &resp); err != nil {
		c.log.WithField(logger.ErrorKey, err).Debug("PeerInfo rpc failed")
		return PeerInfo{}
	}
	if c.stale(conn) {
		return PeerInfo{}
	}
	return resp.PeerInfo
}

// KnownPeers lists the peers the daemon currently knows
func (c *GRPCClient) KnownPeers(ctx context.Context) ([]PeerInfo, error) {
	conn, capability, err := c.binding()
	if err != nil {
		return nil, err
	}
	if capability != CapabilityRich {
		return nil, ErrContractAbsent
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	var resp knownPeersResponse
	err = conn.Invoke(callCtx, methodKnownPeers, &statusRequest{}, &resp)
	if c.stale(conn) {
		return nil, ErrNotConnected
	}
	if err != nil {
		if status.Code(err) == codes.Unimplemented {
			return nil, ErrContractAbsent
		}
		return nil, fmt.Errorf("known peers rpc: %w", err)
	}
	if resp.Peers == nil {
		resp.Peers = []PeerInfo{}
	}
	return resp.Peers, nil
}

// Capability returns the capability fixed at connect
func (c *GRPCClient) Capability() Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capability
}

// Disconnect closes the connection
func (c *GRPCClient) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.capability = CapabilityUnknown
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.log.Debug("Control channel disconnected")
	return conn.Close()
}
