package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/apps78/cotune-bridge/internal/logger"
)

const maxBodySize = 1 << 20

// HTTPClient speaks the daemon's HTTP-compatible control API
type HTTPClient struct {
	ep      endpoint.Endpoint
	opts    Options
	log     logger.Logger
	client  *http.Client
	baseURL string

	mu         sync.RWMutex
	connected  bool
	capability Capability
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an unconnected HTTP client
func NewHTTPClient(ep endpoint.Endpoint, opts Options) *HTTPClient {
	opts = opts.withDefaults()

	client := opts.HTTPClient
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if ep.Network == endpoint.NetworkUnix {
			path := ep.Address
			transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, endpoint.NetworkUnix, path)
			}
		}
		client = &http.Client{Transport: transport}
	}

	return &HTTPClient{
		ep:      ep,
		opts:    opts,
		log:     opts.Logger.WithField(logger.EndpointKey, ep.String()),
		client:  client,
		baseURL: ep.BaseURL(),
	}
}

type httpReply struct {
	code int
	body []byte
}

func (c *HTTPClient) get(ctx context.Context, path string) (httpReply, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return httpReply{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return httpReply{}, &UnavailableError{Target: c.ep.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return httpReply{}, fmt.Errorf("read %s: %w", path, err)
	}
	return httpReply{code: resp.StatusCode, body: body}, nil
}

func (r httpReply) ok() bool {
	return r.code >= 200 && r.code < 300
}

// Connect probes GET /status to fix the capability
func (c *HTTPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	capability := c.opts.forced()
	if capability == CapabilityUnknown {
		reply, err := c.get(ctx, "/status")
		if err != nil {
			return err
		}
		if reply.code == http.StatusNotFound {
			c.log.Info("Daemon does not serve /status, using liveness only")
			capability = CapabilityLiveness
		} else {
			capability = CapabilityRich
		}
	}

	c.connected = true
	c.capability = capability
	c.log.WithField("capability", capability.String()).Debug("Control channel connected")
	return nil
}

func (c *HTTPClient) binding() (Capability, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return CapabilityUnknown, ErrNotConnected
	}
	return c.capability, nil
}

// Status returns the /status body verbatim, or reachability for liveness clients
func (c *HTTPClient) Status(ctx context.Context) (NodeStatus, error) {
	capability, err := c.binding()
	if err != nil {
		return NodeStatus{}, err
	}

	reply, err := c.get(ctx, "/status")
	if _, berr := c.binding(); berr != nil {
		return NodeStatus{}, berr
	}

	if capability == CapabilityLiveness {
		return livenessStatus(err == nil), nil
	}
	if err != nil {
		return NodeStatus{}, err
	}
	if !reply.ok() {
		return NodeStatus{}, fmt.Errorf("status: unexpected status code %d", reply.code)
	}

	return NodeStatus{
		Running:    runningFromBody(reply.body),
		Raw:        json.RawMessage(reply.body),
		ObservedAt: time.Now(),
		Source:     SourceRPC,
	}, nil
}

// runningFromBody honours an explicit "running" field; any other successful body means running
func runningFromBody(body []byte) bool {
	var probe struct {
		Running *bool `json:"running"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Running != nil {
		return *probe.Running
	}
	return true
}

// PeerInfo fetches /peerinfo; failures yield an empty PeerInfo
func (c *HTTPClient) PeerInfo(ctx context.Context) PeerInfo {
	capability, err := c.binding()
	if err != nil || capability != CapabilityRich {
		return PeerInfo{}
	}

	reply, err := c.get(ctx, "/peerinfo?format="+peerInfoFormat)
	if err != nil || !reply.ok() {
		return PeerInfo{}
	}

	var info PeerInfo
	if err := json.Unmarshal(reply.body, &info); err != nil {
		c.log.WithField(logger.ErrorKey, err).Debug("Decoding /peerinfo failed")
		return PeerInfo{}
	}
	if _, err := c.binding(); err != nil {
		return PeerInfo{}
	}
	return info
}

// KnownPeers fetches /known_peers
func (c *HTTPClient) KnownPeers(ctx context.Context) ([]PeerInfo, error) {
	capability, err := c.binding()
	if err != nil {
		return nil, err
	}
	if capability != CapabilityRich {
		return nil, ErrContractAbsent
	}

	reply, err := c.get(ctx, "/known_peers")
	if _, berr := c.binding(); berr != nil {
		return nil, berr
	}
	if err != nil {
		return nil, err
	}
	if reply.code == http.StatusNotFound {
		return nil, ErrContractAbsent
	}
	if !reply.ok() {
		return nil, fmt.Errorf("known peers: unexpected status code %d", reply.code)
	}

	peers := []PeerInfo{}
	if err := json.Unmarshal(reply.body, &peers); err != nil {
		return nil, fmt.Errorf("decode known peers: %w", err)
	}
	if peers == nil {
		peers = []PeerInfo{}
	}
	return peers, nil
}

// Capability returns the capability fixed at connect
func (c *HTTPClient) Capability() Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capability
}

// Disconnect marks the client disconnected and drops idle connections
func (c *HTTPClient) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.capability = CapabilityUnknown
	c.mu.Unlock()

	c.client.CloseIdleConnections()
	return nil
}
