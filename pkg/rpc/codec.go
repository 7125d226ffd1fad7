// Package rpc implements the remote half of the Connection facade (§4.G):
// a grpc.Server/grpc.ClientConn pair exchanging pkg/wire's CBOR-encoded
// envelopes over a single generic method, with no protoc-generated service
// interface. Grounded on the teacher's pkg/api.Server/pkg/client.Client
// split, minus the mTLS/cert-rotation machinery that belongs to a cluster
// deployment rather than an embeddable core.
package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codec is a pass-through encoding.Codec: Marshal/Unmarshal move the raw
// CBOR bytes pkg/wire already produced without an intervening protobuf
// layer. Registered under its own name so it never collides with the
// default proto codec other services on the same process might use.
type codec struct{}

func (codec) Name() string { return "hollow-raw" }

func (codec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("rpc: codec.Marshal: expected *[]byte, got %T", v)
	}
	return *b, nil
}

func (codec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("rpc: codec.Unmarshal: expected *[]byte, got %T", v)
	}
	*b = data
	return nil
}

func init() {
	encoding.RegisterCodec(codec{})
}
