package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets this package's service methods exchange plain Go
// structs without a .proto/protoc-gen-go toolchain: the control surface
// is intentionally thin (spec §1 places message-payload serialization
// out of the core's scope beyond "it exists"), so there is no reason to
// carry a full protobuf schema for a handful of status/control calls.
// grpc-go's codec is pluggable by design (see encoding.Codec) for
// exactly this kind of substitution.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

// codecName is registered as this package's content-subtype and must be
// set via grpc.CallContentSubtype on the client and matched implicitly
// by the server, which accepts any registered codec by name.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// mustMarshalable is a cheap guard used by tests to catch a request/
// response type that doesn't round-trip through the codec (e.g. an
// unexported field holding all the state).
func mustMarshalable(v interface{}) error {
	b, err := (jsonCodec{}).Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: %T does not marshal: %w", v, err)
	}
	return (jsonCodec{}).Unmarshal(b, v)
}
