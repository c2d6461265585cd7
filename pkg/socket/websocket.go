package socket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultCloseTimeout     = 2 * time.Second

	// DefaultReadLimit bounds inbound frames. Receivers never send
	// anything close to it.
	DefaultReadLimit = 64 * 1024
)

// Config configures a WebSocket.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// CloseTimeout is how long Close waits for the peer's close frame
	// before dropping the connection.
	CloseTimeout time.Duration

	ReadLimit int64

	Logger *slog.Logger
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		CloseTimeout:     DefaultCloseTimeout,
		ReadLimit:        DefaultReadLimit,
	}
}

// WebSocket is a Socket over RFC 6455 using text frames and
// ping/pong control frames.
type WebSocket struct {
	config  Config
	handler Handler
	logger  *slog.Logger

	state atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	closing bool

	writeMu sync.Mutex
}

// NewWebSocket creates a socket reporting to h. Zero config fields take
// their defaults.
func NewWebSocket(config Config, h Handler) *WebSocket {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.CloseTimeout == 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}
	if config.ReadLimit == 0 {
		config.ReadLimit = DefaultReadLimit
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebSocket{config: config, handler: h, logger: logger}
}

// NewFactory returns a Factory producing WebSockets with config.
func NewFactory(config Config) Factory {
	return func(h Handler) Socket {
		return NewWebSocket(config, h)
	}
}

// State returns the current socket state.
func (s *WebSocket) State() State {
	return State(s.state.Load())
}

// Connect dials url in the background.
func (s *WebSocket) Connect(url string, tlsConfig *tls.Config) error {
	if !s.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.closing = false
	s.mu.Unlock()

	dialer := &websocket.Dialer{
		HandshakeTimeout: s.config.HandshakeTimeout,
		TLSClientConfig:  tlsConfig,
	}

	go s.dial(ctx, dialer, url)
	return nil
}

func (s *WebSocket) dial(ctx context.Context, dialer *websocket.Dialer, url string) {
	conn, _, err := dialer.DialContext(ctx, url, nil)

	s.mu.Lock()
	s.cancel = nil
	closing := s.closing
	if err != nil || closing {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		s.state.Store(int32(StateDisconnected))
		if closing {
			s.handler.OnClose(nil)
			return
		}
		s.logger.Debug("websocket dial failed", "url", url, "error", err)
		s.handler.OnClose(fmt.Errorf("dial %s: %w", url, err))
		return
	}

	conn.SetReadLimit(s.config.ReadLimit)
	conn.SetPongHandler(func(string) error {
		s.handler.OnPong()
		return nil
	})
	s.conn = conn
	s.state.Store(int32(StateConnected))
	s.mu.Unlock()

	s.logger.Debug("websocket connected", "url", url)
	s.handler.OnOpen()
	s.readLoop(conn)
}

func (s *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.finish(conn, err)
			return
		}
		if msgType == websocket.TextMessage {
			s.handler.OnMessage(data)
		}
	}
}

func (s *WebSocket) finish(conn *websocket.Conn, readErr error) {
	s.mu.Lock()
	local := s.closing
	s.conn = nil
	s.closing = false
	s.mu.Unlock()

	conn.Close()
	s.state.Store(int32(StateDisconnected))

	if local {
		s.handler.OnClose(nil)
		return
	}
	s.logger.Debug("websocket closed by peer", "error", readErr)
	s.handler.OnClose(readErr)
}

// Send writes text as a single text frame.
func (s *WebSocket) Send(text []byte) error {
	conn := s.connected()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, text)
}

// Ping writes a ping control frame.
func (s *WebSocket) Ping() error {
	conn := s.connected()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
}

// Close sends a normal-closure close frame and waits up to CloseTimeout
// for the peer's answer in the background. Closing during the dial aborts it.
func (s *WebSocket) Close() error {
	s.mu.Lock()
	if s.State() == StateDisconnected || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conn := s.conn
	cancel := s.cancel
	if conn != nil {
		s.state.Store(int32(StateClosing))
	}
	s.mu.Unlock()

	if conn == nil {
		if cancel != nil {
			cancel()
		}
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		// The read loop notices the broken connection and finishes.
		conn.Close()
		return nil
	}
	return conn.SetReadDeadline(time.Now().Add(s.config.CloseTimeout))
}

func (s *WebSocket) connected() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateConnected {
		return nil
	}
	return s.conn
}

var _ Socket = (*WebSocket)(nil)
