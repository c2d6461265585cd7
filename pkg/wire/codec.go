package wire

import (
	"encoding/json"
	"fmt"
)

// Encode serializes an envelope to a JSON text frame.
func Encode(env *Envelope) ([]byte, error) {
	if !env.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown frame type %q", ErrMalformedFrame, env.Type)
	}
	out := *env
	if len(out.Message.Data.Params) == 0 {
		out.Message.Data.Params = json.RawMessage("{}")
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return data, nil
}

// Decode parses a JSON text frame into an envelope.
//
// A link-fatal frame (id -1) is accepted whatever its type, since it only
// carries a status. Any other frame must have a known type.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.ID == LinkFatalID {
		return &env, nil
	}
	if !env.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown frame type %q", ErrMalformedFrame, env.Type)
	}
	return &env, nil
}

// PeekID extracts the sequence id of a frame that failed to decode fully.
// It returns false when even the id cannot be read.
func PeekID(data []byte) (int, bool) {
	var head struct {
		ID *int `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.ID == nil {
		return 0, false
	}
	return *head.ID, true
}
