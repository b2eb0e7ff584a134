package endpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		want    Endpoint
		wantErr bool
	}{
		{
			name: "plain host port",
			addr: "127.0.0.1:7777",
			want: Endpoint{Raw: "127.0.0.1:7777", Kind: KindRPC, Network: NetworkTCP, Address: "127.0.0.1:7777"},
		},
		{
			name: "missing host defaults to loopback",
			addr: ":7777",
			want: Endpoint{Raw: ":7777", Kind: KindRPC, Network: NetworkTCP, Address: "127.0.0.1:7777"},
		},
		{
			name: "http scheme selects http kind",
			addr: "http://localhost:8080/",
			want: Endpoint{Raw: "http://localhost:8080/", Kind: KindHTTP, Network: NetworkTCP, Address: "localhost:8080"},
		},
		{
			name: "absolute path is a unix socket",
			addr: "/run/cotune/ctl.sock",
			want: Endpoint{Raw: "/run/cotune/ctl.sock", Kind: KindRPC, Network: NetworkUnix, Address: "/run/cotune/ctl.sock"},
		},
		{
			name: "unix scheme",
			addr: "unix:///tmp/ctl.sock",
			want: Endpoint{Raw: "unix:///tmp/ctl.sock", Kind: KindRPC, Network: NetworkUnix, Address: "/tmp/ctl.sock"},
		},
		{name: "empty", addr: "  ", wantErr: true},
		{name: "no port", addr: "localhost", wantErr: true},
		{name: "empty unix path", addr: "unix://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointTargets(t *testing.T) {
	tcp, err := Parse("127.0.0.1:7777")
	require.NoError(t, err)
	assert.Equal(t, "passthrough:///127.0.0.1:7777", tcp.GRPCTarget())
	assert.Equal(t, "http://127.0.0.1:7777", tcp.BaseURL())

	sock, err := Parse("/tmp/ctl.sock")
	require.NoError(t, err)
	assert.Equal(t, "unix:///tmp/ctl.sock", sock.GRPCTarget())
	assert.Equal(t, "http://unix", sock.BaseURL())
}

func testResolver(t *testing.T) (*Resolver, string) {
	dataDir := t.TempDir()
	node := config.Config{}.Default().Node
	return NewResolver(node, 5*time.Second, dataDir), dataDir
}

func TestResolver_Defaults(t *testing.T) {
	r, dataDir := testResolver(t)

	req, err := r.Default()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7777", req.Endpoint.Address)
	assert.Equal(t, KindRPC, req.Endpoint.Kind)
	assert.Equal(t, "/ip4/0.0.0.0/tcp/0", req.ListenAddr)
	assert.Equal(t, config.DefaultBootstrapPeers, req.Bootstrap)
	assert.Equal(t, dataDir, req.DataDir)
	assert.Equal(t, 5*time.Second, req.ReadinessTimeout)
	assert.False(t, req.EnableRelay)
	assert.False(t, req.ViaHTTPAlias)
}

func TestResolver_Overrides(t *testing.T) {
	r, _ := testResolver(t)
	base := t.TempDir()
	relay := true

	req, err := r.Resolve(Args{
		Proto:       "127.0.0.1:9000",
		HTTP:        "127.0.0.1:9999",
		Listen:      "/ip4/0.0.0.0/tcp/4001",
		Relays:      []string{"/ip4/1.2.3.4/tcp/4001/p2p/relay", config.DefaultBootstrapPeers[0], ""},
		BasePath:    base,
		Timeout:     1500 * time.Millisecond,
		EnableRelay: &relay,
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", req.Endpoint.Address, "proto wins over the http alias")
	assert.Equal(t, "/ip4/0.0.0.0/tcp/4001", req.ListenAddr)
	assert.Equal(t, append(append([]string{}, config.DefaultBootstrapPeers...), "/ip4/1.2.3.4/tcp/4001/p2p/relay"), req.Bootstrap)
	assert.Equal(t, base, req.DataDir)
	assert.Equal(t, 1500*time.Millisecond, req.ReadinessTimeout)
	assert.True(t, req.EnableRelay)
}

func TestResolver_HTTPAlias(t *testing.T) {
	r, _ := testResolver(t)

	req, err := r.Resolve(Args{HTTP: "http://127.0.0.1:8080"})
	require.NoError(t, err)
	assert.True(t, req.ViaHTTPAlias)
	assert.Equal(t, KindHTTP, req.Endpoint.Kind)
	assert.Equal(t, "http://127.0.0.1:8080", req.Endpoint.Raw)

	req, err = r.Resolve(Args{HTTP: "127.0.0.1:8080"})
	require.NoError(t, err)
	assert.True(t, req.ViaHTTPAlias)
	assert.Equal(t, KindRPC, req.Endpoint.Kind)
}

func TestResolver_RelativeDataDir(t *testing.T) {
	r, _ := testResolver(t)

	req, err := r.Resolve(Args{BasePath: "node-data"})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(req.DataDir))
	assert.Equal(t, "node-data", filepath.Base(req.DataDir))
}

func TestResolver_Errors(t *testing.T) {
	r := NewResolver(config.NodeConfig{ProtoAddr: "127.0.0.1:7777"}, time.Second, "")

	_, err := r.Default()
	assert.Error(t, err, "listen address missing")

	r = NewResolver(config.NodeConfig{ProtoAddr: "127.0.0.1:7777", ListenAddr: "/ip4/0.0.0.0/tcp/0"}, time.Second, "")
	_, err = r.Default()
	assert.Error(t, err, "data dir missing")

	_, err = r.Resolve(Args{Proto: "not an address", BasePath: t.TempDir()})
	assert.Error(t, err)
}

func TestSplitRelays(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitRelays(" a, b ;c "))
	assert.Empty(t, SplitRelays(""))
	assert.Empty(t, SplitRelays(" , "))
}
