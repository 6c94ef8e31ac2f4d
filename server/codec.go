package server

import (
	"fmt"

	"connectrpc.com/connect"
	"github.com/fxamacker/cbor/v2"
)

// CodecName is the name of the wire codec; requests carry the content type
// application/cbor.
const CodecName = "cbor"

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ connect.Codec = (*cborCodec)(nil)

func newCodec() *cborCodec {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	dm, err := cbor.DecOptions{MaxArrayElements: 1 << 20}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR dec mode: %v", err))
	}
	return &cborCodec{enc: em, dec: dm}
}

func (c *cborCodec) Name() string { return CodecName }

func (c *cborCodec) Marshal(msg any) ([]byte, error) { return c.enc.Marshal(msg) }

func (c *cborCodec) Unmarshal(data []byte, msg any) error { return c.dec.Unmarshal(data, msg) }
