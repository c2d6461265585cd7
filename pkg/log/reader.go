package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero-valued fields match everything.
type Filter struct {
	ConnectionID string
	DeviceID     string
	Domain       string

	// Service matches MessageEvent.Service.
	Service string

	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

func (f *Filter) matches(event Event) bool {
	if f.ConnectionID != "" && event.ConnectionID != f.ConnectionID {
		return false
	}
	if f.DeviceID != "" && event.DeviceID != f.DeviceID {
		return false
	}
	if f.Domain != "" && event.Domain != f.Domain {
		return false
	}
	if f.Service != "" && (event.Message == nil || event.Message.Service != f.Service) {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader streams events from a capture file.
type Reader struct {
	r       io.ReadCloser
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader reads every event of the file at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader reads the events of the file at path that match filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(f, filter), nil
}

// NewStreamReader reads matching events from r. Close closes r.
func NewStreamReader(r io.ReadCloser, filter Filter) *Reader {
	return &Reader{
		r:       r,
		decoder: NewDecoder(r),
		filter:  filter,
	}
}

// Next returns the next matching event, or io.EOF at the end of the stream.
// A stream cut short in the middle of an event reports io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying stream.
func (r *Reader) Close() error {
	return r.r.Close()
}
