package event

import (
	"encoding/json"

	"google.golang.org/protobuf/proto"
)

// hybridCodec marshals the runner's plain JSON messages while still encoding
// proto messages natively, so the standard health service and status details
// keep working on the same server.
type hybridCodec struct{}

func (hybridCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return json.Marshal(v)
}

func (hybridCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

func (hybridCodec) Name() string {
	return "json"
}
