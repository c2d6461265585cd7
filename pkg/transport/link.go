package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
	"github.com/Orange-OpenSource/ocast-go/pkg/socket"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// State is the lifecycle state of a link.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
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
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

const (
	// DefaultMaxFrameSize is the largest command frame a link sends.
	DefaultMaxFrameSize = 4096

	// DefaultMaxSequenceID is the id after which allocation wraps to 1.
	DefaultMaxSequenceID = math.MaxInt32
)

// Config configures a link.
type Config struct {
	MaxFrameSize  int
	MaxSequenceID int
	KeepAlive     KeepAliveConfig

	// DeviceID tags capture events.
	DeviceID string

	ProtocolLogger log.Logger
	Logger         *slog.Logger
}

// DefaultConfig returns the default link configuration.
func DefaultConfig() Config {
	return Config{
		MaxFrameSize:  DefaultMaxFrameSize,
		MaxSequenceID: DefaultMaxSequenceID,
		KeepAlive:     DefaultKeepAliveConfig(),
	}
}

// Result is the outcome of a command: the reply message, or an error.
// Status is set whenever a reply arrived, including failed ones.
type Result struct {
	Message wire.Message
	Status  string
	Err     error
}

// Delegate receives link notifications. Calls are made without any link
// lock held and may call back into the link.
type Delegate interface {
	LinkDidConnect(l *Link)

	// LinkDidDisconnect follows a Disconnect call.
	LinkDidDisconnect(l *Link)

	// LinkDidFail reports an unsolicited loss of a connected link.
	LinkDidFail(l *Link, err error)

	// LinkDidReceiveEvent delivers an event frame sent by source.
	LinkDidReceiveEvent(l *Link, source string, msg wire.Message)
}

type pendingRequest struct {
	done   func(Result)
	sentAt time.Time
}

// Link correlates commands and replies over one socket and delivers
// events to its delegate.
type Link struct {
	url      string
	identity string
	connID   string
	config   Config
	factory  socket.Factory
	delegate Delegate
	logger   *slog.Logger
	plog     log.Logger

	keepAlive *KeepAlive

	mu             sync.Mutex
	state          State
	sock           socket.Socket
	gen            uint64
	tlsConfig      *tls.Config
	intentional    bool
	reconnect      bool
	connectDone    []func(error)
	disconnectDone []func(error)
	pending        map[int]*pendingRequest
	nextID         int
}

// NewLink creates a disconnected link to url. identity is the source of
// every command and the destination replies must carry. A new socket is
// taken from factory for each connection attempt.
func NewLink(url, identity string, factory socket.Factory, delegate Delegate, config Config) *Link {
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.MaxSequenceID == 0 {
		config.MaxSequenceID = DefaultMaxSequenceID
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Link{
		url:      url,
		identity: identity,
		connID:   uuid.NewString(),
		config:   config,
		factory:  factory,
		delegate: delegate,
		logger:   logger.With("url", url),
		plog:     config.ProtocolLogger,
		pending:  make(map[int]*pendingRequest),
		nextID:   wire.FirstSequenceID,
	}
	l.keepAlive = NewKeepAlive(config.KeepAlive, l.ping, l.keepAliveTimeout)
	return l
}

// URL returns the endpoint URL.
func (l *Link) URL() string { return l.url }

// Identity returns the source identity used in commands.
func (l *Link) Identity() string { return l.identity }

// ConnectionID returns the id tagging this link's capture events.
func (l *Link) ConnectionID() string { return l.connID }

// State returns the current link state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Pending returns the number of commands awaiting a reply.
func (l *Link) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// KeepAliveStats returns the keep-alive statistics of the current connection.
func (l *Link) KeepAliveStats() KeepAliveStats {
	return l.keepAlive.Stats()
}

// Connect opens the link. done, if not nil, is called once the link is
// connected or the attempt failed. Calls made while an attempt is in
// flight share its outcome; calls made while disconnecting reconnect once
// the close completes.
func (l *Link) Connect(tlsConfig *tls.Config, done func(error)) {
	l.mu.Lock()
	switch l.state {
	case StateConnected:
		l.mu.Unlock()
		resolve(done, nil)
		return
	case StateConnecting:
		l.appendConnectDone(done)
		l.mu.Unlock()
		return
	case StateDisconnecting:
		l.tlsConfig = tlsConfig
		l.reconnect = true
		l.appendConnectDone(done)
		l.mu.Unlock()
		return
	}

	l.tlsConfig = tlsConfig
	l.appendConnectDone(done)
	sock, gen := l.beginConnectLocked()
	l.mu.Unlock()

	l.captureState(StateDisconnected, StateConnecting, "")
	l.openSocket(sock, gen, tlsConfig)
}

// Disconnect closes the link. done, if not nil, is called once the socket
// has closed. Pending commands fail with ErrDisconnected.
func (l *Link) Disconnect(done func(error)) {
	l.mu.Lock()
	switch l.state {
	case StateDisconnected:
		l.mu.Unlock()
		resolve(done, nil)
		return
	case StateDisconnecting:
		l.reconnect = false
		if done != nil {
			l.disconnectDone = append(l.disconnectDone, done)
		}
		l.mu.Unlock()
		return
	}

	prev := l.state
	l.state = StateDisconnecting
	l.intentional = true
	l.reconnect = false
	if done != nil {
		l.disconnectDone = append(l.disconnectDone, done)
	}
	l.keepAlive.Stop()
	sock, gen := l.sock, l.gen
	l.mu.Unlock()

	l.captureState(prev, StateDisconnecting, "requested")
	if err := sock.Close(); err != nil {
		l.logger.Debug("socket close failed", "error", err)
		l.handleClose(gen, nil, false)
	}
}

// Send writes a command to domain and calls done with the reply.
//
// Oversized frames and sends on a link that is not connected fail
// immediately without a frame being written or an id being consumed.
func (l *Link) Send(domain string, msg wire.Message, done func(Result)) {
	l.mu.Lock()
	if l.state != StateConnected {
		l.mu.Unlock()
		resolveResult(done, Result{Err: wire.NewError(wire.KindState, "send", wire.ErrNotConnected)})
		return
	}

	id, err := l.allocateIDLocked()
	if err != nil {
		l.mu.Unlock()
		resolveResult(done, Result{Err: wire.NewError(wire.KindProtocol, "send", err)})
		return
	}

	env := &wire.Envelope{
		Destination: domain,
		Source:      l.identity,
		Type:        wire.FrameCommand,
		ID:          id,
		Message:     msg,
	}
	data, err := wire.Encode(env)
	if err != nil {
		l.mu.Unlock()
		resolveResult(done, Result{Err: wire.NewError(wire.KindProtocol, "send", err)})
		return
	}
	if len(data) > l.config.MaxFrameSize {
		l.mu.Unlock()
		err := fmt.Errorf("%w: %d bytes exceeds %d", wire.ErrFrameTooLarge, len(data), l.config.MaxFrameSize)
		resolveResult(done, Result{Err: wire.NewError(wire.KindProtocol, "send", err)})
		return
	}

	// Registered before the write so a fast reply always finds its entry.
	req := &pendingRequest{done: done, sentAt: time.Now()}
	l.pending[id] = req
	l.nextID = id + 1
	sock := l.sock
	l.mu.Unlock()

	if err := sock.Send(data); err != nil {
		l.mu.Lock()
		if l.pending[id] == req {
			delete(l.pending, id)
		} else {
			req = nil
		}
		l.mu.Unlock()
		if req != nil {
			resolveResult(done, Result{Err: wire.NewError(wire.KindNetwork, "send", err)})
		}
		return
	}

	l.captureFrame(log.DirectionOut, data)
	l.captureMessage(log.DirectionOut, env, nil)
}

// allocateIDLocked returns the next sequence id not held by a pending
// command, wrapping to 1 past MaxSequenceID.
func (l *Link) allocateIDLocked() (int, error) {
	limit := l.config.MaxSequenceID
	if len(l.pending) >= limit {
		return 0, wire.ErrSequenceExhausted
	}
	id := l.nextID
	for {
		if id < wire.FirstSequenceID || id > limit {
			id = wire.FirstSequenceID
		}
		if _, busy := l.pending[id]; !busy {
			return id, nil
		}
		id++
	}
}

func (l *Link) appendConnectDone(done func(error)) {
	if done != nil {
		l.connectDone = append(l.connectDone, done)
	}
}

// beginConnectLocked moves to CONNECTING with a fresh socket.
func (l *Link) beginConnectLocked() (socket.Socket, uint64) {
	l.state = StateConnecting
	l.intentional = false
	l.gen++
	l.sock = l.factory(&linkHandler{link: l, gen: l.gen})
	return l.sock, l.gen
}

func (l *Link) openSocket(sock socket.Socket, gen uint64, tlsConfig *tls.Config) {
	l.logger.Debug("connecting")
	if err := sock.Connect(l.url, tlsConfig); err != nil {
		l.handleClose(gen, err, false)
	}
}

func (l *Link) handleOpen(gen uint64) {
	l.mu.Lock()
	if gen != l.gen || l.state != StateConnecting {
		l.mu.Unlock()
		return
	}
	l.state = StateConnected
	done := l.connectDone
	l.connectDone = nil
	l.keepAlive.Start()
	l.mu.Unlock()

	l.logger.Debug("connected")
	l.captureState(StateConnecting, StateConnected, "")
	for _, d := range done {
		d(nil)
	}
	if l.delegate != nil {
		l.delegate.LinkDidConnect(l)
	}
}

// handleClose moves the link to DISCONNECTED, purges pending work and
// notifies. cause is nil for a requested close. With closeSocket the
// socket is closed before anyone is notified.
func (l *Link) handleClose(gen uint64, cause error, closeSocket bool) {
	l.mu.Lock()
	if gen != l.gen || l.state == StateDisconnected {
		l.mu.Unlock()
		return
	}

	prev := l.state
	intentional := l.intentional
	l.state = StateDisconnected
	l.intentional = false
	l.keepAlive.Stop()

	pending := l.pending
	l.pending = make(map[int]*pendingRequest)
	connectDone := l.connectDone
	disconnectDone := l.disconnectDone
	l.connectDone = nil
	l.disconnectDone = nil

	sock := l.sock
	var (
		next    socket.Socket
		nextGen uint64
	)
	reconnect := l.reconnect && intentional
	l.reconnect = false
	if reconnect {
		l.connectDone = connectDone
		connectDone = nil
		next, nextGen = l.beginConnectLocked()
	}
	tlsConfig := l.tlsConfig
	l.mu.Unlock()

	if closeSocket {
		_ = sock.Close()
	}

	reason := "requested"
	if !intentional {
		reason = "failed"
		if cause != nil {
			reason = cause.Error()
		}
	}
	l.logger.Debug("disconnected", "reason", reason)
	l.captureState(prev, StateDisconnected, reason)

	purgeErr := wire.NewError(wire.KindNetwork, "send", wire.ErrDisconnected)
	for _, req := range pending {
		resolveResult(req.done, Result{Err: purgeErr})
	}

	connectErr := asNetworkError("connect", cause)
	if intentional || cause == nil {
		connectErr = wire.NewError(wire.KindNetwork, "connect", wire.ErrDisconnected)
	}
	for _, d := range connectDone {
		d(connectErr)
	}
	for _, d := range disconnectDone {
		d(nil)
	}

	if l.delegate != nil {
		switch {
		case intentional:
			l.delegate.LinkDidDisconnect(l)
		case prev == StateConnected:
			failErr := asNetworkError("link", cause)
			if cause == nil {
				failErr = wire.NewError(wire.KindNetwork, "link", wire.ErrDisconnected)
			}
			l.captureError(failErr, "link lost")
			l.delegate.LinkDidFail(l, failErr)
		}
	}

	if reconnect {
		l.captureState(StateDisconnected, StateConnecting, "")
		l.openSocket(next, nextGen, tlsConfig)
	}
}

func (l *Link) handleMessage(gen uint64, data []byte) {
	l.mu.Lock()
	stale := gen != l.gen
	l.mu.Unlock()
	if stale {
		return
	}

	l.captureFrame(log.DirectionIn, data)

	env, err := wire.Decode(data)
	if err != nil {
		l.handleMalformed(data, err)
		return
	}

	if env.ID == wire.LinkFatalID {
		l.handleLinkFatal(env)
		return
	}

	if env.Destination != l.identity && env.Destination != wire.DestinationAll {
		return
	}

	switch env.Type {
	case wire.FrameEvent:
		l.captureMessage(log.DirectionIn, env, nil)
		if l.delegate != nil {
			l.delegate.LinkDidReceiveEvent(l, env.Source, env.Message)
		}
	case wire.FrameReply:
		l.mu.Lock()
		req, ok := l.pending[env.ID]
		if ok {
			delete(l.pending, env.ID)
		}
		l.mu.Unlock()
		if !ok {
			l.logger.Debug("reply without pending command", "id", env.ID)
			return
		}
		rtt := time.Since(req.sentAt)
		l.captureMessage(log.DirectionIn, env, &rtt)

		res := Result{Message: env.Message, Status: env.Status}
		if !wire.IsOK(env.Status) {
			res.Err = wire.NewStatusError(wire.KindRemote, "reply", env.Status, wire.ErrRemoteStatus)
		}
		resolveResult(req.done, res)
	default:
		// Receivers do not send commands to controllers.
	}
}

// handleMalformed fails the one command whose id can still be read.
func (l *Link) handleMalformed(data []byte, err error) {
	l.captureError(err, "decode")
	id, ok := wire.PeekID(data)
	if !ok || id == wire.LinkFatalID {
		l.logger.Debug("dropping malformed frame", "error", err)
		return
	}

	l.mu.Lock()
	req, found := l.pending[id]
	if found {
		delete(l.pending, id)
	}
	l.mu.Unlock()

	if found {
		resolveResult(req.done, Result{Err: wire.NewError(wire.KindProtocol, "reply", err)})
	}
}

// handleLinkFatal fails every pending command. The socket stays open.
func (l *Link) handleLinkFatal(env *wire.Envelope) {
	l.mu.Lock()
	pending := l.pending
	l.pending = make(map[int]*pendingRequest)
	l.mu.Unlock()

	err := wire.NewStatusError(wire.KindProtocol, "link", env.Status, wire.ErrLinkFatal)
	l.logger.Warn("link-fatal frame", "status", env.Status, "failed", len(pending))
	l.captureError(err, "link-fatal")

	for _, req := range pending {
		resolveResult(req.done, Result{Status: env.Status, Err: err})
	}
}

func (l *Link) ping() error {
	l.mu.Lock()
	sock := l.sock
	connected := l.state == StateConnected
	l.mu.Unlock()
	if !connected {
		return socket.ErrNotConnected
	}
	l.captureControl(log.ControlMsgPing, l.keepAlive.Stats().MissedPongs)
	return sock.Ping()
}

func (l *Link) handlePong(gen uint64) {
	l.mu.Lock()
	stale := gen != l.gen
	l.mu.Unlock()
	if stale {
		return
	}
	l.keepAlive.PongReceived()
	l.captureControl(log.ControlMsgPong, 0)
}

func (l *Link) keepAliveTimeout(missed int) {
	l.mu.Lock()
	gen := l.gen
	connected := l.state == StateConnected
	l.mu.Unlock()
	if !connected {
		return
	}

	l.logger.Warn("keep-alive timeout", "missed", missed)
	err := wire.NewError(wire.KindNetwork, "keepalive", wire.ErrKeepAliveTimeout)
	l.handleClose(gen, err, true)
}

// linkHandler binds socket callbacks to one connection attempt so that
// late events from a replaced socket are ignored.
type linkHandler struct {
	link *Link
	gen  uint64
}

func (h *linkHandler) OnOpen()               { h.link.handleOpen(h.gen) }
func (h *linkHandler) OnMessage(text []byte) { h.link.handleMessage(h.gen, text) }
func (h *linkHandler) OnPong()               { h.link.handlePong(h.gen) }
func (h *linkHandler) OnClose(err error)     { h.link.handleClose(h.gen, err, false) }

func resolve(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

func resolveResult(done func(Result), res Result) {
	if done != nil {
		done(res)
	}
}

func asNetworkError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *wire.Error
	if errors.As(err, &e) {
		return err
	}
	return wire.NewError(wire.KindNetwork, op, err)
}

var _ socket.Handler = (*linkHandler)(nil)
