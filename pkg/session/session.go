package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Orange-OpenSource/ocast-go/pkg/connection"
	"github.com/Orange-OpenSource/ocast-go/pkg/dial"
	"github.com/Orange-OpenSource/ocast-go/pkg/discovery"
	"github.com/Orange-OpenSource/ocast-go/pkg/log"
	"github.com/Orange-OpenSource/ocast-go/pkg/socket"
	"github.com/Orange-OpenSource/ocast-go/pkg/transport"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// Session errors. They reach callers wrapped in a *wire.Error.
var (
	ErrClosed        = errors.New("session closed")
	ErrUnknownModule = errors.New("unknown module")
	ErrUnknownDomain = errors.New("unknown domain")
	ErrNoEndpoint    = errors.New("no endpoint for module")
	ErrNoLifecycle   = errors.New("no lifecycle service")
	ErrNotPermitted  = errors.New("module not permitted")
)

// Lifecycle manages the receiver application. *dial.Client implements it.
type Lifecycle interface {
	Info(ctx context.Context, app string) (*dial.AppInfo, error)
	Start(ctx context.Context, app string) error
	Stop(ctx context.Context, app string) error
}

// FailureHandler is told about every module lost to an unsolicited link
// failure. Pending commands of the module have already failed.
type FailureHandler func(m Module, err error)

// Event is an event frame delivered to registered handlers.
type Event struct {
	// Domain is the source domain of the frame.
	Domain  string
	Message wire.Message
}

// EventHandler receives events. It runs on the link's receive goroutine
// and must not block.
type EventHandler func(Event)

// Session is the connection to one receiver.
type Session struct {
	device    discovery.Device
	config    Config
	lifecycle Lifecycle
	identity  string
	factory   socket.Factory
	logger    *slog.Logger
	plog      log.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	reconnector *connection.Reconnector

	mu        sync.Mutex
	closed    bool
	modules   map[Module]*binding
	links     map[string]*transport.Link
	nextToken uint64
	failure   FailureHandler
	events    map[string]EventHandler
	services  map[string]EventHandler
	lost      map[Module]target

	appName    string
	appRunning bool
	starting   *appLaunch
}

// appLaunch is an application launch in flight, shared by its waiters.
type appLaunch struct {
	// connected is closed by the connectedStatus event; nil once closed.
	connected chan struct{}
	cancel    context.CancelFunc
	waiters   []func(error)
}

// target is where a module connects.
type target struct {
	module Module
	url    string
}

// New creates a disconnected session for device. lifecycle may be nil, in
// which case the application is assumed to be running.
func New(device discovery.Device, lifecycle Lifecycle, config Config) *Session {
	if config.LaunchTimeout == 0 {
		config.LaunchTimeout = DefaultLaunchTimeout
	}
	if config.LifecycleTimeout == 0 {
		config.LifecycleTimeout = DefaultLifecycleTimeout
	}
	if config.Identity == "" {
		config.Identity = uuid.NewString()
	}
	if config.Link.DeviceID == "" {
		config.Link.DeviceID = device.ID
	}
	if config.Link.ProtocolLogger == nil {
		config.Link.ProtocolLogger = config.ProtocolLogger
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.Link.Logger == nil {
		config.Link.Logger = logger
	}
	factory := config.SocketFactory
	if factory == nil {
		factory = socket.NewFactory(socket.Config{Logger: logger})
	}

	s := &Session{
		device:    device,
		config:    config,
		lifecycle: lifecycle,
		identity:  config.Identity,
		factory:   factory,
		logger:    logger.With("device", device.ID),
		plog:      config.ProtocolLogger,
		modules:   make(map[Module]*binding, len(allModules)),
		links:     make(map[string]*transport.Link),
		events:    make(map[string]EventHandler),
		services:  make(map[string]EventHandler),
		lost:      make(map[Module]target),
		appName:   config.ApplicationName,
	}
	for _, m := range allModules {
		s.modules[m] = &binding{}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if config.Reconnect {
		s.reconnector = connection.NewReconnector(s.reconnect, connection.ReconnectConfig{
			Backoff:     config.Backoff,
			MaxAttempts: config.MaxReconnectAttempts,
			OnAttempt: func(attempt int, delay time.Duration) {
				s.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
			},
			OnReconnected: func() {
				s.logger.Info("reconnected")
			},
			OnGiveUp: func(err error) {
				s.logger.Warn("reconnection abandoned", "error", err)
				s.mu.Lock()
				clear(s.lost)
				s.mu.Unlock()
			},
		})
	}
	return s
}

// Device returns the receiver this session talks to.
func (s *Session) Device() discovery.Device {
	return s.device
}

// Identity returns the source identity of the session's commands.
func (s *Session) Identity() string {
	return s.identity
}

// State returns an aggregate of the module states: CONNECTING or
// DISCONNECTING while any module is in transition, CONNECTED when at least
// one module is connected, DISCONNECTED otherwise.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	var connected bool
	for _, b := range s.modules {
		switch b.state {
		case StateConnecting:
			return StateConnecting
		case StateDisconnecting:
			return StateDisconnecting
		case StateConnected:
			connected = true
		}
	}
	if connected {
		return StateConnected
	}
	return StateDisconnected
}

// ModuleState returns the state of one module.
func (s *Session) ModuleState(m Module) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.modules[m]; ok {
		return b.state
	}
	return StateDisconnected
}

// ModuleURL returns the endpoint the module is bound to, if any.
func (s *Session) ModuleURL(m Module) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.modules[m]; ok && b.state != StateDisconnected {
		return b.url
	}
	return ""
}

// Links returns the number of links currently in use.
func (s *Session) Links() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// SetFailureHandler installs h, replacing any previous handler.
func (s *Session) SetFailureHandler(h FailureHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = h
}

// ApplicationName returns the web application driven by the session.
func (s *Session) ApplicationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appName
}

// SetApplicationName changes the web application. The application is then
// considered not running until checked again.
func (s *Session) SetApplicationName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == s.appName {
		return
	}
	s.appName = name
	s.appRunning = false
}

// ApplicationRunning reports the cached run state of the application.
func (s *Session) ApplicationRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appRunning
}

// Close disconnects every module, cancels launches and reconnections, and
// waits for the links to close. The session cannot be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	clear(s.lost)
	waiters := s.abortLaunchLocked()
	s.mu.Unlock()

	s.cancel()
	if s.reconnector != nil {
		s.reconnector.Close()
	}
	for _, w := range waiters {
		w(s.closedError("launch"))
	}

	var wg sync.WaitGroup
	for _, m := range allModules {
		wg.Add(1)
		s.DisconnectModule(m, func(error) { wg.Done() })
	}
	wg.Wait()
	s.logger.Debug("session closed")
}

func (s *Session) closedError(op string) error {
	return wire.NewError(wire.KindState, op, ErrClosed)
}

func unknownModule(op string, m Module) error {
	return wire.NewError(wire.KindState, op, fmt.Errorf("%w: %d", ErrUnknownModule, m))
}

func resolve(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

func resolveResult(done func(transport.Result), res transport.Result) {
	if done != nil {
		done(res)
	}
}

var _ transport.Delegate = (*Session)(nil)
