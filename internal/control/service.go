package control

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service exposed by the daemon
const ServiceName = "cotune.CotuneService"

const (
	methodStatus     = "/" + ServiceName + "/Status"
	methodPeerInfo   = "/" + ServiceName + "/PeerInfo"
	methodKnownPeers = "/" + ServiceName + "/KnownPeers"
)

// DaemonServer is the server side of the control contract. The bridge only consumes it;
// it exists so tests and tooling can stand in for a daemon.
type DaemonServer interface {
	Status(ctx context.Context) (StatusResponse, error)
	PeerInfo(ctx context.Context, format string) (PeerInfo, error)
	KnownPeers(ctx context.Context) ([]PeerInfo, error)
}

// ServerCodec must be passed to grpc.NewServer when registering a DaemonServer
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(wireCodec{})
}

// RegisterDaemonServer registers impl under ServiceName
func RegisterDaemonServer(s *grpc.Server, impl DaemonServer) {
	s.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DaemonServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "PeerInfo", Handler: peerInfoHandler},
		{MethodName: "KnownPeers", Handler: knownPeersHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cotune.proto",
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	if err := dec(&statusRequest{}); err != nil {
		return nil, err
	}
	resp, err := srv.(DaemonServer).Status(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func peerInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &peerInfoRequest{}
	if err := dec(req); err != nil {
		return nil, err
	}
	info, err := srv.(DaemonServer).PeerInfo(ctx, req.Format)
	if err != nil {
		return nil, err
	}
	return &peerInfoResponse{PeerInfo: info}, nil
}

func knownPeersHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	if err := dec(&statusRequest{}); err != nil {
		return nil, err
	}
	peers, err := srv.(DaemonServer).KnownPeers(ctx)
	if err != nil {
		return nil, err
	}
	return &knownPeersResponse{Peers: peers}, nil
}
