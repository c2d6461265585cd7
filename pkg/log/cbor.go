package log

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Capture files hold canonical CBOR: sorted integer keys, definite
// lengths and RFC 3339 timestamps with nanoseconds. Decoding is lenient
// so that files written by older builds still load.
var (
	captureEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})
	captureDec = mustDecMode(cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	mode, err := opts.EncMode()
	if err != nil {
		panic("log: cbor encoding options: " + err.Error())
	}
	return mode
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	mode, err := opts.DecMode()
	if err != nil {
		panic("log: cbor decoding options: " + err.Error())
	}
	return mode
}

// EncodeEvent returns the capture encoding of event.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEnc.Marshal(event)
}

// DecodeEvent parses one encoded event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := captureDec.Unmarshal(data, &event)
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder returns an encoder appending events to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return captureEnc.NewEncoder(w)
}

// NewDecoder returns a decoder reading consecutive events from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return captureDec.NewDecoder(r)
}
