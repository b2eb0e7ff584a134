// Package controltest provides in-process stand-ins for the cotune daemon's control channel.
package controltest

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Daemon is a scriptable DaemonServer
type Daemon struct {
	mu      sync.Mutex
	running bool
	version string
	info    control.PeerInfo
	peers   []control.PeerInfo

	statusCalls atomic.Int32
}

var _ control.DaemonServer = (*Daemon)(nil)

// NewDaemon returns a daemon that reports running with a fixed identity
func NewDaemon() *Daemon {
	return &Daemon{
		running: true,
		version: "test",
		info: control.PeerInfo{
			PeerID:    "12D3KooWTestPeer",
			Addresses: []string{"/ip4/127.0.0.1/tcp/4001"},
		},
		peers: []control.PeerInfo{
			{PeerID: "12D3KooWOther", Addresses: []string{"/ip4/10.0.0.2/tcp/4001"}},
		},
	}
}

// SetRunning changes the reported running flag
func (d *Daemon) SetRunning(running bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = running
}

// StatusCalls returns how many Status requests were served
func (d *Daemon) StatusCalls() int {
	return int(d.statusCalls.Load())
}

func (d *Daemon) Status(context.Context) (control.StatusResponse, error) {
	d.statusCalls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	return control.StatusResponse{Running: d.running, Version: d.version}, nil
}

func (d *Daemon) PeerInfo(context.Context, string) (control.PeerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info, nil
}

func (d *Daemon) KnownPeers(context.Context) ([]control.PeerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]control.PeerInfo(nil), d.peers...), nil
}

type settings struct {
	contract bool
	health   bool
	listener net.Listener
}

// Option configures a fake server
type Option func(*settings)

// WithoutContract serves no cotune.CotuneService, as an old daemon would
func WithoutContract() Option {
	return func(s *settings) { s.contract = false }
}

// WithoutHealth omits the grpc_health_v1 service
func WithoutHealth() Option {
	return func(s *settings) { s.health = false }
}

// WithListener serves on l instead of a fresh loopback port
func WithListener(l net.Listener) Option {
	return func(s *settings) { s.listener = l }
}

// Server is a running fake gRPC daemon
type Server struct {
	Daemon *Daemon
	Health *health.Server
	addr   string
	srv    *grpc.Server
}

// NewServer starts a fake gRPC daemon; it is stopped by t.Cleanup
func NewServer(t testing.TB, d *Daemon, opts ...Option) *Server {
	t.Helper()

	cfg := settings{contract: true, health: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	lis := cfg.listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
	}

	s := &Server{Daemon: d, addr: lis.Addr().String(), srv: grpc.NewServer(control.ServerCodec())}
	if cfg.contract {
		control.RegisterDaemonServer(s.srv, d)
	}
	if cfg.health {
		s.Health = health.NewServer()
		grpc_health_v1.RegisterHealthServer(s.srv, s.Health)
		s.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	}

	go func() { _ = s.srv.Serve(lis) }()
	t.Cleanup(s.Stop)
	return s
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.addr
}

// Endpoint returns the gRPC endpoint of the server
func (s *Server) Endpoint() endpoint.Endpoint {
	ep, _ := endpoint.Parse(s.addr)
	return ep
}

// Stop stops the server immediately
func (s *Server) Stop() {
	s.srv.Stop()
}

// NewHTTPServer serves d over the HTTP-compatible API. Without the contract every route
// answers 404 except the root.
func NewHTTPServer(t testing.TB, d *Daemon, contract bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if contract {
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			st, _ := d.Status(r.Context())
			writeJSON(w, map[string]interface{}{"running": st.Running, "version": st.Version, "peers": 1})
		})
		mux.HandleFunc("/peerinfo", func(w http.ResponseWriter, r *http.Request) {
			info, _ := d.PeerInfo(r.Context(), r.URL.Query().Get("format"))
			writeJSON(w, map[string]interface{}{"peerId": info.PeerID, "addrs": info.Addresses, "ts": 1})
		})
		mux.HandleFunc("/known_peers", func(w http.ResponseWriter, r *http.Request) {
			peers, _ := d.KnownPeers(r.Context())
			writeJSON(w, peers)
		})
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
