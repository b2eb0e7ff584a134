package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestStatusResponseWireFormat(t *testing.T) {
	resp := &StatusResponse{Running: true, Version: "1.2.0"}

	var want []byte
	want = protowire.AppendTag(want, 1, protowire.VarintType)
	want = protowire.AppendVarint(want, 1)
	want = protowire.AppendTag(want, 2, protowire.BytesType)
	want = protowire.AppendString(want, "1.2.0")

	assert.Equal(t, want, resp.marshalWire())
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 7, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 99)
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	var resp StatusResponse
	require.NoError(t, resp.unmarshalWire(b))
	assert.True(t, resp.Running)
	assert.Empty(t, resp.Version)
}

func TestUnmarshalTruncated(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendVarint(b, 10)
	b = append(b, "short"...)

	var resp StatusResponse
	assert.Error(t, resp.unmarshalWire(b))
}

func TestPeerInfoResponseDecoding(t *testing.T) {
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.BytesType)
	inner = protowire.AppendString(inner, "12D3KooWPeer")
	inner = protowire.AppendTag(inner, 2, protowire.BytesType)
	inner = protowire.AppendString(inner, "/ip4/1.1.1.1/tcp/1")
	inner = protowire.AppendTag(inner, 2, protowire.BytesType)
	inner = protowire.AppendString(inner, "/ip4/2.2.2.2/udp/1/quic-v1")

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)

	var resp peerInfoResponse
	require.NoError(t, resp.unmarshalWire(b))
	assert.Equal(t, PeerInfo{
		PeerID:    "12D3KooWPeer",
		Addresses: []string{"/ip4/1.1.1.1/tcp/1", "/ip4/2.2.2.2/udp/1/quic-v1"},
	}, resp.PeerInfo)
}

func TestKnownPeersResponseDecoding(t *testing.T) {
	peers := []PeerInfo{
		{PeerID: "a", Addresses: []string{"/ip4/1.1.1.1/tcp/1"}},
		{PeerID: "b"},
	}
	msg := &knownPeersResponse{Peers: peers}

	var decoded knownPeersResponse
	require.NoError(t, decoded.unmarshalWire(msg.marshalWire()))
	assert.Equal(t, peers, decoded.Peers)
}

func TestCodecFallsBackToProtoRuntime(t *testing.T) {
	codec := wireCodec{}
	assert.Equal(t, "proto", codec.Name())

	in := &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}
	b, err := codec.Marshal(in)
	require.NoError(t, err)

	out := &grpc_health_v1.HealthCheckResponse{}
	require.NoError(t, codec.Unmarshal(b, out))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, out.GetStatus())

	_, err = codec.Marshal(struct{}{})
	assert.Error(t, err)
	assert.Error(t, codec.Unmarshal(nil, &struct{}{}))
}
