package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec names for frames.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Frame is one named event as it arrives on the wire.
type Frame struct {
	Name string
	Data map[string]any
}

type envelope struct {
	Event string         `json:"event" msgpack:"event"`
	Data  map[string]any `json:"data" msgpack:"data"`
}

// DecodeJSON parses a text frame. Both the {"event","data"} envelope and the
// ["name", {...}] array form are accepted.
func DecodeJSON(b []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Frame{}, fmt.Errorf("decode json frame: %w", err)
	}
	return frameFrom(raw)
}

// DecodeMsgpack parses a binary frame in either form accepted by DecodeJSON.
func DecodeMsgpack(b []byte) (Frame, error) {
	var raw any
	if err := msgpack.Unmarshal(b, &raw); err != nil {
		return Frame{}, fmt.Errorf("decode msgpack frame: %w", err)
	}
	return frameFrom(raw)
}

// EncodeJSON builds a text frame. It is used by tests and local tooling that
// stand in for the backend.
func EncodeJSON(name string, data map[string]any) ([]byte, error) {
	b, err := json.Marshal(envelope{Event: name, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode json frame: %w", err)
	}
	return b, nil
}

// EncodeMsgpack builds a binary frame.
func EncodeMsgpack(name string, data map[string]any) ([]byte, error) {
	b, err := msgpack.Marshal(envelope{Event: name, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode msgpack frame: %w", err)
	}
	return b, nil
}

func frameFrom(raw any) (Frame, error) {
	switch v := raw.(type) {
	case map[string]any:
		name, ok := v["event"].(string)
		if !ok || name == "" {
			return Frame{}, errors.New("frame has no event name")
		}
		data, err := dataFrom(v["data"])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Name: name, Data: data}, nil
	case []any:
		if len(v) == 0 {
			return Frame{}, errors.New("frame array is empty")
		}
		name, ok := v[0].(string)
		if !ok || name == "" {
			return Frame{}, errors.New("frame has no event name")
		}
		var data map[string]any
		if len(v) > 1 {
			var err error
			if data, err = dataFrom(v[1]); err != nil {
				return Frame{}, err
			}
		}
		return Frame{Name: name, Data: data}, nil
	default:
		return Frame{}, fmt.Errorf("frame is a %T, not an object or array", raw)
	}
}

func dataFrom(raw any) (map[string]any, error) {
	switch d := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return d, nil
	case map[any]any:
		out := make(map[string]any, len(d))
		for k, v := range d {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("frame data key %v is not a string", k)
			}
			out[ks] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("frame data is a %T, not an object", raw)
	}
}
