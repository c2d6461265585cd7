package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FrameType identifies the direction and purpose of a frame.
type FrameType string

const (
	// FrameCommand is a request sent to the receiver.
	FrameCommand FrameType = "command"

	// FrameReply answers a command with the same sequence id.
	FrameReply FrameType = "reply"

	// FrameEvent is an unsolicited notification from the receiver.
	FrameEvent FrameType = "event"
)

// Valid reports whether t is one of the known frame types.
func (t FrameType) Valid() bool {
	switch t {
	case FrameCommand, FrameReply, FrameEvent:
		return true
	default:
		return false
	}
}

// Domains multiplexed over a link.
const (
	// DomainBrowser carries web application and media traffic.
	DomainBrowser = "browser"

	// DomainSettings carries device and input settings traffic.
	DomainSettings = "settings"

	// DestinationAll is the wildcard destination used for broadcast frames.
	DestinationAll = "*"
)

// Sequence id values with special meaning.
const (
	// LinkFatalID marks a frame that fails every pending request on a link.
	LinkFatalID = -1

	// FirstSequenceID is the first id handed out by a link.
	FirstSequenceID = 1
)

// Well-known services and event names.
const (
	// ServiceWebApp is the service used by the receiver web application
	// to announce its connection state.
	ServiceWebApp = "org.ocast.webapp"

	// ServiceMedia is the media player service.
	ServiceMedia = "org.ocast.media"

	// ServiceSettingsDevice is the device settings service.
	ServiceSettingsDevice = "org.ocast.settings.device"

	// ServiceSettingsInput is the remote input settings service.
	ServiceSettingsInput = "org.ocast.settings.input"

	// EventConnectedStatus is emitted by the web application when it
	// connects to or disconnects from the link.
	EventConnectedStatus = "connectedStatus"

	// ConnectedStatusConnected is the params.status value of a connected
	// web application.
	ConnectedStatusConnected = "connected"

	// ConnectedStatusDisconnected is the params.status value of a
	// disconnected web application.
	ConnectedStatusDisconnected = "disconnected"
)

// Envelope wraps every message exchanged over a link.
type Envelope struct {
	Destination string    `json:"dst"`
	Source      string    `json:"src"`
	Type        FrameType `json:"type"`
	ID          int       `json:"id"`
	Status      string    `json:"status,omitempty"`
	Message     Message   `json:"message"`
}

// Message is the body of an envelope: a service and the data addressed to it.
type Message struct {
	Service string `json:"service"`
	Data    Data   `json:"data"`
}

// Data names an operation or event and carries its parameters.
// Params and Options hold raw JSON objects; consumers decode them into
// their own typed structures.
type Data struct {
	Name    string          `json:"name"`
	Params  json.RawMessage `json:"params"`
	Options json.RawMessage `json:"options,omitempty"`
}

// NewMessage builds a message whose params are the JSON encoding of params.
// A nil params encodes as an empty object.
func NewMessage(service, name string, params any) (Message, error) {
	raw, err := encodeObject(params)
	if err != nil {
		return Message{}, fmt.Errorf("encode params for %s/%s: %w", service, name, err)
	}
	return Message{
		Service: service,
		Data: Data{
			Name:   name,
			Params: raw,
		},
	}, nil
}

// WithOptions returns a copy of m carrying the JSON encoding of options.
func (m Message) WithOptions(options any) (Message, error) {
	raw, err := encodeObject(options)
	if err != nil {
		return Message{}, fmt.Errorf("encode options for %s/%s: %w", m.Service, m.Data.Name, err)
	}
	m.Data.Options = raw
	return m, nil
}

// DecodeParams decodes the message params into v.
func (m Message) DecodeParams(v any) error {
	if len(m.Data.Params) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data.Params, v)
}

// connectedStatusParams is the params object of a connectedStatus event.
type connectedStatusParams struct {
	Status string `json:"status"`
}

// ConnectedStatus returns the web application connection status carried by
// m, and false when m is not a connectedStatus event.
func (m Message) ConnectedStatus() (string, bool) {
	if m.Service != ServiceWebApp || m.Data.Name != EventConnectedStatus {
		return "", false
	}
	var p connectedStatusParams
	if err := m.DecodeParams(&p); err != nil {
		return "", false
	}
	return p.Status, true
}

// encodeObject marshals v, mapping nil to an empty JSON object.
func encodeObject(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(bytes.TrimSpace(p)) == 0 {
			return json.RawMessage("{}"), nil
		}
		return p, nil
	}
	return json.Marshal(v)
}
