package socket

import (
	"crypto/tls"
	"errors"
)

// State is the lifecycle state of a socket.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Socket errors.
var (
	ErrNotConnected     = errors.New("socket: not connected")
	ErrAlreadyConnected = errors.New("socket: already connected")
)

// Handler receives socket events. Calls for one socket never overlap.
type Handler interface {
	// OnOpen is called when the channel is ready for Send.
	OnOpen()

	// OnMessage is called for every inbound text frame.
	OnMessage(text []byte)

	// OnPong is called when the peer answers a Ping.
	OnPong()

	// OnClose is called once per Connect, after a failed open or when an
	// open channel goes away. err is nil when Close was called locally.
	OnClose(err error)
}

// Socket is a duplex text channel to a single URL.
type Socket interface {
	// Connect starts opening the channel and returns without waiting.
	// The outcome is reported through OnOpen or OnClose.
	Connect(url string, tlsConfig *tls.Config) error

	// Send writes one text frame.
	Send(text []byte) error

	// Ping writes a keep-alive probe.
	Ping() error

	// Close starts closing the channel. OnClose follows.
	Close() error

	State() State
}

// Factory creates a socket reporting to h.
type Factory func(h Handler) Socket
