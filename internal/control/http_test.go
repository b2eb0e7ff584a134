package control_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/control/controltest"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpEndpoint(t *testing.T, srv *httptest.Server) endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.Parse(srv.URL)
	require.NoError(t, err)
	require.Equal(t, endpoint.KindHTTP, ep.Kind)
	return ep
}

func TestHTTPClient_RichContract(t *testing.T) {
	srv := controltest.NewHTTPServer(t, controltest.NewDaemon(), true)
	c := control.New(httpEndpoint(t, srv), control.Options{CallTimeout: time.Second})
	_, isHTTP := c.(*control.HTTPClient)
	require.True(t, isHTTP)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, control.CapabilityRich, c.Capability())

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, control.SourceRPC, st.Source)
	assert.JSONEq(t, `{"running":true,"version":"test","peers":1}`, string(st.Raw), "body is surfaced verbatim")

	info := c.PeerInfo(ctx)
	assert.Equal(t, "12D3KooWTestPeer", info.PeerID)

	peers, err := c.KnownPeers(ctx)
	require.NoError(t, err)
	assert.Len(t, peers, 1)
}

func TestHTTPClient_LivenessFallback(t *testing.T) {
	srv := controltest.NewHTTPServer(t, controltest.NewDaemon(), false)
	c := control.New(httpEndpoint(t, srv), control.Options{CallTimeout: time.Second})
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, control.CapabilityLiveness, c.Capability())

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, control.SourceLiveness, st.Source)

	assert.True(t, c.PeerInfo(ctx).Empty())
	_, err = c.KnownPeers(ctx)
	assert.ErrorIs(t, err, control.ErrContractAbsent)

	srv.Close()
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestHTTPClient_Unavailable(t *testing.T) {
	srv := controltest.NewHTTPServer(t, controltest.NewDaemon(), true)
	ep := httpEndpoint(t, srv)
	srv.Close()

	c := control.New(ep, control.Options{CallTimeout: 500 * time.Millisecond})
	err := c.Connect(context.Background())
	var unavailable *control.UnavailableError
	assert.ErrorAs(t, err, &unavailable)

	_, err = c.Status(context.Background())
	assert.ErrorIs(t, err, control.ErrNotConnected)
}

func TestHTTPClient_PeerInfoDecodeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"running":true}`))
	})
	mux.HandleFunc("/peerinfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := control.New(httpEndpoint(t, srv), control.Options{})
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.PeerInfo(context.Background()).Empty())
}

func TestHTTPClient_Disconnect(t *testing.T) {
	srv := controltest.NewHTTPServer(t, controltest.NewDaemon(), true)
	c := control.New(httpEndpoint(t, srv), control.Options{})
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())

	_, err := c.Status(ctx)
	assert.ErrorIs(t, err, control.ErrNotConnected)
	assert.True(t, c.PeerInfo(ctx).Empty())
}

func TestHTTPClient_UnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ctl.sock")
	lis, err := net.Listen("unix", sock)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"running":false}`))
	})
	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Close() })

	ep := endpoint.Endpoint{Raw: sock, Kind: endpoint.KindHTTP, Network: endpoint.NetworkUnix, Address: sock}
	c := control.NewHTTPClient(ep, control.Options{})
	require.NoError(t, c.Connect(context.Background()))

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
}
