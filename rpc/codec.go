// Package rpc is the grpc transport of spec §4.J and §4.H: a hand-written
// grpc.ServiceDesc for the six sync verbs (GetSummary, GetAbbrBlock,
// GetSmtBranch, GetStakersRaw, GetLz4Blocks, SendTx), built the way
// protoc-gen-go-grpc would generate one, but carrying stdcode's wire
// types instead of protobuf messages — so the same message definitions
// package sync already has (and package state/history already encode
// with) travel over grpc without a second schema or code generator.
// Dispatch is wired through a custom encoding.Codec rather than the
// proto codec grpc defaults to.
package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/themelio-labs/themelio-core/stdcode"
)

// CodecName is the grpc content-subtype this codec answers to; a client
// must select it per call (grpc.CallContentSubtype(CodecName)) since
// grpc only uses the default proto codec unless told otherwise.
const CodecName = "stdcode"

type stdcodeCodec struct{}

func init() {
	encoding.RegisterCodec(stdcodeCodec{})
}

func (stdcodeCodec) Name() string { return CodecName }

func (stdcodeCodec) Marshal(v interface{}) ([]byte, error) {
	enc, ok := v.(stdcode.Encoder)
	if !ok {
		return nil, fmt.Errorf("rpc: %T does not implement stdcode.Encoder", v)
	}
	return stdcode.Marshal(enc), nil
}

func (stdcodeCodec) Unmarshal(data []byte, v interface{}) error {
	dec, ok := v.(stdcode.Decoder)
	if !ok {
		return fmt.Errorf("rpc: %T does not implement stdcode.Decoder", v)
	}
	return stdcode.Unmarshal(data, dec)
}
