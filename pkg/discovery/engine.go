package discovery

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/dial"
)

// Transport sends search requests and reports responses.
// Implementations must not call back from within Open.
type Transport interface {
	// Open starts receiving. onResponse gets every well-formed response;
	// onError reports a fatal asynchronous failure, after which the
	// transport is unusable.
	Open(onResponse func(SearchResponse), onError func(error)) error

	// Search sends one search request for target.
	Search(target string, mx time.Duration) error

	Close() error
}

// DescriptorResolver fetches the descriptor announced in a response.
// *dial.Resolver implements it.
type DescriptorResolver interface {
	Resolve(ctx context.Context, location string) (*dial.Descriptor, error)
}

// Delegate receives discovery notifications, one at a time and in order,
// on a goroutine owned by the engine.
type Delegate interface {
	DevicesAdded(devices []Device)
	DevicesRemoved(devices []Device)

	// DiscoveryStopped follows Stop with a nil error, or reports the
	// transport failure that ended discovery.
	DiscoveryStopped(err error)
}

// Config configures an Engine.
type Config struct {
	SearchTargets []string

	// Interval is the time between cycles, at least MinInterval.
	Interval time.Duration

	// MaxResponseWait is the MX announced in requests.
	MaxResponseWait time.Duration

	RemovalMargin  time.Duration
	ResolveTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the configuration for cast receivers.
func DefaultConfig() Config {
	return Config{
		SearchTargets:   []string{SearchTargetOCast},
		Interval:        DefaultInterval,
		MaxResponseWait: DefaultMaxResponseWait,
		RemovalMargin:   DefaultRemovalMargin,
		ResolveTimeout:  DefaultResolveTimeout,
	}
}

type engineState int

const (
	engineStopped engineState = iota
	engineRunning
	enginePaused
)

// Engine runs discovery cycles and owns the device table.
type Engine struct {
	config    Config
	transport Transport
	resolver  DescriptorResolver
	delegate  Delegate
	notifier  *notifier
	logger    *slog.Logger

	mu         sync.Mutex
	state      engineState
	open       bool
	gen        uint64
	devices    map[string]*Device
	resolving  map[string]time.Time
	cycleTimer *time.Timer
	sweepTimer *time.Timer
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewEngine creates a stopped engine. resolver may be nil, in which case
// devices carry only what the search response says.
func NewEngine(config Config, transport Transport, resolver DescriptorResolver, delegate Delegate) *Engine {
	if len(config.SearchTargets) == 0 {
		config.SearchTargets = []string{SearchTargetOCast}
	}
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.Interval < MinInterval {
		config.Interval = MinInterval
	}
	if config.MaxResponseWait == 0 {
		config.MaxResponseWait = DefaultMaxResponseWait
	}
	if config.RemovalMargin == 0 {
		config.RemovalMargin = DefaultRemovalMargin
	}
	if config.ResolveTimeout == 0 {
		config.ResolveTimeout = DefaultResolveTimeout
	}
	// A sweep must happen before the next cycle starts.
	if minInterval := config.MaxResponseWait + config.RemovalMargin; config.Interval < minInterval {
		config.Interval = minInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		config:    config,
		transport: transport,
		resolver:  resolver,
		delegate:  delegate,
		notifier:  newNotifier(),
		logger:    logger,
		devices:   make(map[string]*Device),
		resolving: make(map[string]time.Time),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Running reports whether cycles are being sent.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == engineRunning
}

// Resume starts, or restarts after Pause, the discovery cycles. If the
// transport cannot be opened nothing changes and the error is returned.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.state == engineRunning {
		e.mu.Unlock()
		return nil
	}
	if !e.open {
		if err := e.transport.Open(e.handleResponse, e.handleTransportError); err != nil {
			e.mu.Unlock()
			return err
		}
		e.open = true
	}
	if e.ctx == nil {
		e.ctx, e.cancel = context.WithCancel(context.Background())
	}
	e.state = engineRunning
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	e.logger.Debug("discovery resumed", "targets", e.config.SearchTargets)
	e.runCycle(gen)
	return nil
}

// Pause stops cycles and sweeps. The table is kept.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != engineRunning {
		return
	}
	e.state = enginePaused
	e.gen++
	e.stopTimersLocked()
	e.logger.Debug("discovery paused")
}

// Stop ends discovery, reports every known device as removed and then
// reports DiscoveryStopped(nil).
func (e *Engine) Stop() {
	e.shutdown(nil)
}

// Devices returns a snapshot of the table ordered by id.
func (e *Engine) Devices() []Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Wait blocks until every notification posted so far was delivered.
func (e *Engine) Wait() {
	e.notifier.wait()
}

func (e *Engine) snapshotLocked() []Device {
	out := make([]Device, 0, len(e.devices))
	for _, d := range e.devices {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b Device) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (e *Engine) shutdown(cause error) {
	e.mu.Lock()
	if e.state == engineStopped && !e.open {
		e.mu.Unlock()
		return
	}
	e.state = engineStopped
	e.gen++
	e.stopTimersLocked()
	if e.cancel != nil {
		e.cancel()
		e.ctx, e.cancel = nil, nil
	}
	removed := e.snapshotLocked()
	e.devices = make(map[string]*Device)
	e.resolving = make(map[string]time.Time)
	wasOpen := e.open
	e.open = false
	e.mu.Unlock()

	if wasOpen {
		if err := e.transport.Close(); err != nil {
			e.logger.Debug("transport close failed", "error", err)
		}
	}
	if cause != nil {
		e.logger.Warn("discovery stopped", "error", cause)
	} else {
		e.logger.Debug("discovery stopped")
	}

	if e.delegate == nil {
		return
	}
	if len(removed) > 0 {
		e.notifier.post(func() { e.delegate.DevicesRemoved(removed) })
	}
	e.notifier.post(func() { e.delegate.DiscoveryStopped(cause) })
}

func (e *Engine) stopTimersLocked() {
	if e.cycleTimer != nil {
		e.cycleTimer.Stop()
		e.cycleTimer = nil
	}
	if e.sweepTimer != nil {
		e.sweepTimer.Stop()
		e.sweepTimer = nil
	}
}

func (e *Engine) runCycle(gen uint64) {
	e.mu.Lock()
	if e.state != engineRunning || gen != e.gen {
		e.mu.Unlock()
		return
	}
	sendTime := time.Now()
	e.mu.Unlock()

	for _, target := range e.config.SearchTargets {
		for i := 0; i < 2; i++ {
			if err := e.transport.Search(target, e.config.MaxResponseWait); err != nil {
				e.logger.Debug("search failed", "target", target, "error", err)
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != engineRunning || gen != e.gen {
		return
	}
	e.sweepTimer = time.AfterFunc(e.config.MaxResponseWait+e.config.RemovalMargin, func() {
		e.sweep(gen, sendTime)
	})
	e.cycleTimer = time.AfterFunc(e.config.Interval, func() {
		e.runCycle(gen)
	})
}

// sweep removes the devices that did not answer since sendTime.
func (e *Engine) sweep(gen uint64, sendTime time.Time) {
	e.mu.Lock()
	if e.state != engineRunning || gen != e.gen {
		e.mu.Unlock()
		return
	}
	var removed []Device
	for id, d := range e.devices {
		if d.LastSeen.Before(sendTime) {
			removed = append(removed, *d)
			delete(e.devices, id)
		}
	}
	e.mu.Unlock()

	if len(removed) == 0 || e.delegate == nil {
		return
	}
	slices.SortFunc(removed, func(a, b Device) int { return strings.Compare(a.ID, b.ID) })
	e.logger.Debug("devices lost", "count", len(removed))
	e.notifier.post(func() { e.delegate.DevicesRemoved(removed) })
}

func (e *Engine) matchesTarget(st string) bool {
	for _, t := range e.config.SearchTargets {
		if strings.EqualFold(t, st) {
			return true
		}
	}
	return false
}

func (e *Engine) handleResponse(resp SearchResponse) {
	if resp.ID == "" || !e.matchesTarget(resp.SearchTarget) {
		return
	}
	now := time.Now()

	e.mu.Lock()
	if e.state != engineRunning {
		e.mu.Unlock()
		return
	}
	if d, ok := e.devices[resp.ID]; ok {
		d.LastSeen = now
		e.mu.Unlock()
		return
	}
	if _, ok := e.resolving[resp.ID]; ok {
		e.resolving[resp.ID] = now
		e.mu.Unlock()
		return
	}
	e.resolving[resp.ID] = now
	ctx := e.ctx
	e.mu.Unlock()

	go e.resolve(ctx, resp)
}

func (e *Engine) resolve(ctx context.Context, resp SearchResponse) {
	var desc *dial.Descriptor
	var err error
	if e.resolver != nil {
		rctx, cancel := context.WithTimeout(ctx, e.config.ResolveTimeout)
		desc, err = e.resolver.Resolve(rctx, resp.Location)
		cancel()
	}

	e.mu.Lock()
	seen, tracked := e.resolving[resp.ID]
	if tracked {
		delete(e.resolving, resp.ID)
	}
	if err != nil {
		e.mu.Unlock()
		e.logger.Debug("descriptor fetch failed", "location", resp.Location, "error", err)
		return
	}
	if !tracked || e.state != engineRunning {
		e.mu.Unlock()
		return
	}
	if d, ok := e.devices[resp.ID]; ok {
		if seen.After(d.LastSeen) {
			d.LastSeen = seen
		}
		e.mu.Unlock()
		return
	}
	d := newDevice(resp, desc, seen)
	e.devices[d.ID] = d
	added := []Device{*d}
	e.mu.Unlock()

	e.logger.Debug("device found", "id", d.ID, "name", d.FriendlyName, "host", d.Host)
	if e.delegate != nil {
		e.notifier.post(func() { e.delegate.DevicesAdded(added) })
	}
}

func (e *Engine) handleTransportError(err error) {
	e.mu.Lock()
	stopped := e.state == engineStopped && !e.open
	e.mu.Unlock()
	if stopped {
		return
	}
	if err == nil {
		err = ErrTransportClosed
	}
	e.shutdown(err)
}
