// Package sockettest provides an in-memory socket.Socket for testing the
// layers built on top of it.
package sockettest

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Orange-OpenSource/ocast-go/pkg/socket"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// ErrDropped is reported to OnClose by Drop when no error is given.
var ErrDropped = errors.New("sockettest: connection dropped")

// Socket is a scripted socket. Handler callbacks run synchronously on the
// goroutine that triggers them.
type Socket struct {
	// AutoOpen makes Connect report OnOpen immediately.
	AutoOpen bool

	// ConnectErr is returned by Connect.
	ConnectErr error

	// SendErr is returned by Send.
	SendErr error

	// AutoPong answers every Ping.
	AutoPong bool

	// OnSend, when set, is called after every successful Send.
	OnSend func(s *Socket, frame []byte)

	mu       sync.Mutex
	handler  socket.Handler
	state    socket.State
	url      string
	tls      *tls.Config
	connects int
	closes   int
	pings    int
	sent     [][]byte
}

// New returns a fake socket reporting to h.
func New(h socket.Handler) *Socket {
	return &Socket{handler: h}
}

// Connect records the call and, with AutoOpen, opens the socket.
func (s *Socket) Connect(url string, tlsConfig *tls.Config) error {
	s.mu.Lock()
	if s.state != socket.StateDisconnected {
		s.mu.Unlock()
		return socket.ErrAlreadyConnected
	}
	s.connects++
	s.url = url
	s.tls = tlsConfig
	if s.ConnectErr != nil {
		s.mu.Unlock()
		return s.ConnectErr
	}
	s.state = socket.StateConnecting
	auto := s.AutoOpen
	s.mu.Unlock()

	if auto {
		s.Open()
	}
	return nil
}

// Send records frame.
func (s *Socket) Send(frame []byte) error {
	s.mu.Lock()
	if s.state != socket.StateConnected {
		s.mu.Unlock()
		return socket.ErrNotConnected
	}
	if s.SendErr != nil {
		s.mu.Unlock()
		return s.SendErr
	}
	s.sent = append(s.sent, append([]byte(nil), frame...))
	hook := s.OnSend
	s.mu.Unlock()

	if hook != nil {
		hook(s, frame)
	}
	return nil
}

// Ping counts the probe. Without AutoPong, pongs are delivered with Pong.
func (s *Socket) Ping() error {
	s.mu.Lock()
	if s.state != socket.StateConnected {
		s.mu.Unlock()
		return socket.ErrNotConnected
	}
	s.pings++
	auto := s.AutoPong
	s.mu.Unlock()

	if auto {
		s.handler.OnPong()
	}
	return nil
}

// Close closes the socket and reports OnClose(nil).
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.state == socket.StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.closes++
	s.state = socket.StateDisconnected
	s.mu.Unlock()

	s.handler.OnClose(nil)
	return nil
}

// State returns the socket state.
func (s *Socket) State() socket.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open completes a pending Connect.
func (s *Socket) Open() {
	s.mu.Lock()
	if s.state != socket.StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = socket.StateConnected
	s.mu.Unlock()

	s.handler.OnOpen()
}

// Drop closes the socket from the remote side with err, or ErrDropped.
func (s *Socket) Drop(err error) {
	s.mu.Lock()
	if s.state == socket.StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = socket.StateDisconnected
	s.mu.Unlock()

	if err == nil {
		err = ErrDropped
	}
	s.handler.OnClose(err)
}

// Receive delivers an inbound text frame.
func (s *Socket) Receive(frame []byte) {
	s.handler.OnMessage(frame)
}

// ReceiveEnvelope encodes env and delivers it.
func (s *Socket) ReceiveEnvelope(env *wire.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.Receive(data)
	return nil
}

// Reply answers the command frame with a reply carrying status and params.
func (s *Socket) Reply(command []byte, status string, params any) error {
	cmd, err := wire.Decode(command)
	if err != nil {
		return err
	}
	msg, err := wire.NewMessage(cmd.Message.Service, cmd.Message.Data.Name, params)
	if err != nil {
		return err
	}
	return s.ReceiveEnvelope(&wire.Envelope{
		Destination: cmd.Source,
		Source:      cmd.Destination,
		Type:        wire.FrameReply,
		ID:          cmd.ID,
		Status:      status,
		Message:     msg,
	})
}

// Pong delivers a keep-alive answer.
func (s *Socket) Pong() {
	s.handler.OnPong()
}

// URL returns the URL of the last Connect.
func (s *Socket) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// TLSConfig returns the TLS configuration of the last Connect.
func (s *Socket) TLSConfig() *tls.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tls
}

// Connects returns the number of Connect calls.
func (s *Socket) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Closes returns the number of local Close calls that closed the socket.
func (s *Socket) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Pings returns the number of pings written.
func (s *Socket) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// Sent returns a copy of every frame written so far.
func (s *Socket) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// LastSent decodes the last frame written, or returns nil.
func (s *Socket) LastSent() *wire.Envelope {
	sent := s.Sent()
	if len(sent) == 0 {
		return nil
	}
	env, err := wire.Decode(sent[len(sent)-1])
	if err != nil {
		return nil
	}
	return env
}

// Factory hands out fake sockets and remembers them.
type Factory struct {
	// AutoOpen is copied to every socket created.
	AutoOpen bool

	// Configure, when set, is applied to every new socket.
	Configure func(s *Socket)

	mu      sync.Mutex
	sockets []*Socket
}

// New implements socket.Factory.
func (f *Factory) New(h socket.Handler) socket.Socket {
	s := New(h)
	s.AutoOpen = f.AutoOpen
	if f.Configure != nil {
		f.Configure(s)
	}
	f.mu.Lock()
	f.sockets = append(f.sockets, s)
	f.mu.Unlock()
	return s
}

// Sockets returns every socket created so far.
func (f *Factory) Sockets() []*Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Socket(nil), f.sockets...)
}

// Last returns the most recently created socket, or nil.
func (f *Factory) Last() *Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sockets) == 0 {
		return nil
	}
	return f.sockets[len(f.sockets)-1]
}

var _ socket.Socket = (*Socket)(nil)
