package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec is a google.golang.org/grpc/encoding.Codec that marshals
// messages as JSON instead of protobuf wire bytes. It is registered under
// the name "proto" (codecName) so it becomes the default codec for both
// the in-process server and the worker client dial options, without
// requiring generated protoc-gen-go bindings for the hand-declared message
// types in messages.go — see the package doc for the rationale.
type jsonCodec struct{}

const codecName = "proto"

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}
