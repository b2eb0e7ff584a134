package control_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/control/controltest"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func bufconnClient(t *testing.T, d *controltest.Daemon, opts ...controltest.Option) (*control.GRPCClient, *controltest.Server) {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := controltest.NewServer(t, d, append(opts, controltest.WithListener(lis))...)

	ep := endpoint.Endpoint{Raw: "bufnet:1", Kind: endpoint.KindRPC, Network: endpoint.NetworkTCP, Address: "bufnet:1"}
	c := control.NewGRPCClient(ep, control.Options{
		CallTimeout: time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	t.Cleanup(func() { _ = c.Disconnect() })
	return c, srv
}

func TestGRPCClient_RichContract(t *testing.T) {
	d := controltest.NewDaemon()
	c, _ := bufconnClient(t, d)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, control.CapabilityRich, c.Capability())

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, control.SourceRPC, st.Source)
	assert.JSONEq(t, `{"running":true,"version":"test"}`, string(st.Raw))
	assert.False(t, st.ObservedAt.IsZero())

	info := c.PeerInfo(ctx)
	assert.Equal(t, "12D3KooWTestPeer", info.PeerID)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001"}, info.Addresses)

	peers, err := c.KnownPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "12D3KooWOther", peers[0].PeerID)
}

func TestGRPCClient_ConnectIsIdempotent(t *testing.T) {
	d := controltest.NewDaemon()
	c, _ := bufconnClient(t, d)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	calls := d.StatusCalls()
	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, calls, d.StatusCalls(), "second connect must not re-probe")
}

func TestGRPCClient_LivenessFallback(t *testing.T) {
	d := controltest.NewDaemon()
	c, srv := bufconnClient(t, d, controltest.WithoutContract())
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, control.CapabilityLiveness, c.Capability())

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, control.SourceLiveness, st.Source)

	srv.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	st, err = c.Status(ctx)
	require.NoError(t, err, "liveness never raises for a missing contract")
	assert.False(t, st.Running)

	assert.True(t, c.PeerInfo(ctx).Empty())

	_, err = c.KnownPeers(ctx)
	assert.ErrorIs(t, err, control.ErrContractAbsent)
}

func TestGRPCClient_LivenessWithoutHealthService(t *testing.T) {
	d := controltest.NewDaemon()
	c, _ := bufconnClient(t, d, controltest.WithoutContract(), controltest.WithoutHealth())
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, control.CapabilityLiveness, c.Capability())

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running, "a connection that answers is reachable")
	assert.Equal(t, control.SourceLiveness, st.Source)
}

func TestGRPCClient_CapabilityFixedAtConnect(t *testing.T) {
	d := controltest.NewDaemon()
	c, srv := bufconnClient(t, d)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, control.CapabilityRich, c.Capability())

	srv.Stop()
	_, err := c.Status(ctx)
	assert.Error(t, err)
	assert.Equal(t, control.CapabilityRich, c.Capability(), "failures do not downgrade a live binding")
}

func TestGRPCClient_Unavailable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	ep, err := endpoint.Parse(addr)
	require.NoError(t, err)
	c := control.NewGRPCClient(ep, control.Options{CallTimeout: 500 * time.Millisecond})

	err = c.Connect(context.Background())
	var unavailable *control.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, control.CapabilityUnknown, c.Capability())

	_, err = c.Status(context.Background())
	assert.ErrorIs(t, err, control.ErrNotConnected, "a failed connect leaves the client unbound")
	assert.True(t, c.PeerInfo(context.Background()).Empty())
}

func TestGRPCClient_DisconnectedQueriesFail(t *testing.T) {
	d := controltest.NewDaemon()
	c, _ := bufconnClient(t, d)
	ctx := context.Background()

	_, err := c.Status(ctx)
	assert.ErrorIs(t, err, control.ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())

	_, err = c.Status(ctx)
	assert.ErrorIs(t, err, control.ErrNotConnected)
	_, err = c.KnownPeers(ctx)
	assert.ErrorIs(t, err, control.ErrNotConnected)
	assert.True(t, c.PeerInfo(ctx).Empty())
}

func TestGRPCClient_ForcedContract(t *testing.T) {
	d := controltest.NewDaemon()
	srv := controltest.NewServer(t, d)

	c := control.New(srv.Endpoint(), control.Options{Contract: config.ContractLiveness})
	t.Cleanup(func() { _ = c.Disconnect() })

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, control.CapabilityLiveness, c.Capability())
	assert.Zero(t, d.StatusCalls(), "forced contract skips the probe")

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, control.SourceLiveness, st.Source)
}

func TestGRPCClient_OverTCP(t *testing.T) {
	d := controltest.NewDaemon()
	d.SetRunning(false)
	srv := controltest.NewServer(t, d)

	c := control.New(srv.Endpoint(), control.Options{})
	t.Cleanup(func() { _ = c.Disconnect() })
	_, isGRPC := c.(*control.GRPCClient)
	assert.True(t, isGRPC)

	require.NoError(t, c.Connect(context.Background()))
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(st.Raw, &raw))
	assert.Equal(t, false, raw["running"])
}
