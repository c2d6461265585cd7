package log

import "time"

// Event is a protocol capture record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the link instance, or the session for
	// session-layer events (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// URL is the link endpoint.
	URL string `cbor:"6,keyasint,omitempty"`

	// DeviceID is the discovered receiver id, when known.
	DeviceID string `cbor:"7,keyasint,omitempty"`

	// Domain is the link domain (browser or settings).
	Domain string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn is a frame received from the receiver.
	DirectionIn Direction = 0
	// DirectionOut is a frame sent to the receiver.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerSocket is the text frame layer.
	LayerSocket Layer = 0
	// LayerLink is the envelope layer (sequence ids, replies, events).
	LayerLink Layer = 1
	// LayerSession is the device session layer.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerSocket:
		return "SOCKET"
	case LayerLink:
		return "LINK"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer returns the layer named s (case-sensitive, as printed by String).
func ParseLayer(s string) (Layer, bool) {
	for _, l := range []Layer{LayerSocket, LayerLink, LayerSession} {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory returns the category named s.
func ParseCategory(s string) (Category, bool) {
	for _, c := range []Category{CategoryMessage, CategoryControl, CategoryState, CategoryError} {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// FrameEvent captures a raw text frame.
type FrameEvent struct {
	Size int `cbor:"1,keyasint"`

	// Data is the frame text, possibly truncated.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxCapturedFrame is the largest frame body stored in a FrameEvent.
const MaxCapturedFrame = 1024

// NewFrameEvent captures data, truncating it to MaxCapturedFrame bytes.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxCapturedFrame {
		fe.Data = append([]byte(nil), data[:MaxCapturedFrame]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// MessageEvent captures a decoded envelope.
type MessageEvent struct {
	// Type is the frame type: command, reply or event.
	Type string `cbor:"1,keyasint"`

	// ID is the sequence id (-1 for link-fatal frames).
	ID int `cbor:"2,keyasint"`

	Destination string `cbor:"3,keyasint,omitempty"`
	Source      string `cbor:"4,keyasint,omitempty"`
	Service     string `cbor:"5,keyasint,omitempty"`
	Name        string `cbor:"6,keyasint,omitempty"`
	Status      string `cbor:"7,keyasint,omitempty"`

	// Params is the raw JSON params object.
	Params string `cbor:"8,keyasint,omitempty"`

	// RoundTrip is the time between a command and its reply (reply only).
	RoundTrip *time.Duration `cbor:"9,keyasint,omitempty"`
}

// StateChangeEvent captures link, module and application lifecycle changes.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityLink        StateEntity = 0
	StateEntityModule      StateEntity = 1
	StateEntityApplication StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityLink:
		return "LINK"
	case StateEntityModule:
		return "MODULE"
	case StateEntityApplication:
		return "APPLICATION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures socket control frames.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseCode is the WebSocket close code for close frames.
	CloseCode *int `cbor:"2,keyasint,omitempty"`

	// Missed is the number of unanswered pings when the event was recorded.
	Missed int `cbor:"3,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control frame.
type ControlMsgType uint8

const (
	ControlMsgPing  ControlMsgType = 0
	ControlMsgPong  ControlMsgType = 1
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Kind is the SDK error class (NETWORK, PROTOCOL, ...).
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
