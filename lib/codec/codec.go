package codec

import (
	"encoding"
	"encoding/json"
	"fmt"
)

type Marshaler interface {
	BinaryCodec
	JSONCodec
}

type BinaryCodec interface {
	Marshal(message any) ([]byte, error)
	Unmarshal(data []byte, ptr any) error
}

type JSONCodec interface {
	json.Marshaler
	json.Unmarshaler
}

var _ BinaryCodec = &Wire{}

// Wire routes Marshal and Unmarshal through the object's own proto-wire implementation.
// Every persisted state object implements encoding.BinaryMarshaler / BinaryUnmarshaler
// over the protobuf wire format so the stored bytes stay language neutral.
type Wire struct{}

func (w *Wire) Marshal(message any) ([]byte, error) {
	m, ok := message.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("type %T is not wire encodable", message)
	}
	return m.MarshalBinary()
}

func (w *Wire) Unmarshal(data []byte, ptr any) error {
	u, ok := ptr.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("type %T is not wire decodable", ptr)
	}
	return u.UnmarshalBinary(data)
}
