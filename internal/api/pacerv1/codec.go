package pacerv1

import (
	jsoniter "github.com/json-iterator/go"
)

// CodecName is the name the JSON codec registers under. It replaces the
// protojson codec Connect installs by default.
const CodecName = "json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONCodec serializes pacer.v1 messages, which are plain Go structs,
// as JSON.
type JSONCodec struct{}

// Name returns the codec name.
func (JSONCodec) Name() string {
	return CodecName
}

// Marshal encodes a message.
func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal decodes a message. An empty body leaves msg untouched.
func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
