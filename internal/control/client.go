package control

import (
	"net/http"
	"time"

	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/apps78/cotune-bridge/internal/logger"
	"google.golang.org/grpc"
)

// DefaultCallTimeout bounds every control call when Options.CallTimeout is unset
const DefaultCallTimeout = 3 * time.Second

// peerInfoFormat is requested from the daemon's PeerInfo RPC
const peerInfoFormat = "json"

// Options configures a control client
type Options struct {
	CallTimeout time.Duration
	// Contract is one of config.ContractAuto, config.ContractRich or config.ContractLiveness
	Contract string
	Logger   logger.Logger

	// DialOptions are appended to the gRPC defaults
	DialOptions []grpc.DialOption
	// HTTPClient replaces the default HTTP client
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Contract == "" {
		o.Contract = config.ContractAuto
	}
	o.Logger = logger.OrDiscard(o.Logger)
	return o
}

// forced returns the capability pinned by Options.Contract, or CapabilityUnknown for auto
func (o Options) forced() Capability {
	switch o.Contract {
	case config.ContractRich:
		return CapabilityRich
	case config.ContractLiveness:
		return CapabilityLiveness
	default:
		return CapabilityUnknown
	}
}

// New returns the client matching the endpoint kind
func New(ep endpoint.Endpoint, opts Options) Client {
	if ep.Kind == endpoint.KindHTTP {
		return NewHTTPClient(ep, opts)
	}
	return NewGRPCClient(ep, opts)
}
