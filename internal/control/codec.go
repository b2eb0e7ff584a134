package control

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// codecName matches the content-subtype of the standard proto codec so peers with
// generated stubs interoperate
const codecName = "proto"

// wireMessage is implemented by the hand-encoded control messages
type wireMessage interface {
	marshalWire() []byte
	unmarshalWire(b []byte) error
}

// wireCodec encodes control messages with protowire and falls back to the proto runtime
// for generated messages such as the health service
type wireCodec struct{}

func (wireCodec) Name() string {
	return codecName
}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		return m.marshalWire(), nil
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("control codec: cannot marshal %T", v)
	}
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case wireMessage:
		return m.unmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("control codec: cannot unmarshal into %T", v)
	}
}

type statusRequest struct{}

func (*statusRequest) marshalWire() []byte { return nil }

func (*statusRequest) unmarshalWire(b []byte) error {
	return walk(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return skipField, nil })
}

// StatusResponse is the daemon's answer to Status
type StatusResponse struct {
	Running bool   `json:"running"`
	Version string `json:"version,omitempty"`
}

func (r *StatusResponse) marshalWire() []byte {
	var b []byte
	if r.Running {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if r.Version != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, r.Version)
	}
	return b
}

func (r *StatusResponse) unmarshalWire(b []byte) error {
	*r = StatusResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Running = protowire.DecodeBool(v)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			r.Version = s
			return n, nil
		}
		return skipField, nil
	})
}

type peerInfoRequest struct {
	Format string
}

func (r *peerInfoRequest) marshalWire() []byte {
	var b []byte
	if r.Format != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, r.Format)
	}
	return b
}

func (r *peerInfoRequest) unmarshalWire(b []byte) error {
	*r = peerInfoRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(b)
			r.Format = s
			return n, nil
		}
		return skipField, nil
	})
}

func appendPeerInfo(b []byte, p PeerInfo) []byte {
	if p.PeerID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, p.PeerID)
	}
	for _, a := range p.Addresses {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, a)
	}
	return b
}

func parsePeerInfo(b []byte) (PeerInfo, error) {
	var p PeerInfo
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skipField, nil
		}
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			p.PeerID = s
			return n, nil
		case 2:
			s, n := protowire.ConsumeString(b)
			if n >= 0 {
				p.Addresses = append(p.Addresses, s)
			}
			return n, nil
		}
		return skipField, nil
	})
	return p, err
}

type peerInfoResponse struct {
	PeerInfo PeerInfo
}

func (r *peerInfoResponse) marshalWire() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, appendPeerInfo(nil, r.PeerInfo))
}

func (r *peerInfoResponse) unmarshalWire(b []byte) error {
	*r = peerInfoResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 || typ != protowire.BytesType {
			return skipField, nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		p, err := parsePeerInfo(v)
		r.PeerInfo = p
		return n, err
	})
}

type knownPeersResponse struct {
	Peers []PeerInfo
}

func (r *knownPeersResponse) marshalWire() []byte {
	var b []byte
	for _, p := range r.Peers {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, appendPeerInfo(nil, p))
	}
	return b
}

func (r *knownPeersResponse) unmarshalWire(b []byte) error {
	*r = knownPeersResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 || typ != protowire.BytesType {
			return skipField, nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		p, err := parsePeerInfo(v)
		r.Peers = append(r.Peers, p)
		return n, err
	})
}

// skipField tells walk to skip the current field value
const skipField = math.MinInt

// walk iterates the fields of b. fn returns the number of value bytes it consumed, or
// skipField. Negative counts are protowire errors.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == skipField {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}
