package center

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/Orange-OpenSource/ocast-go/pkg/discovery"
	"github.com/Orange-OpenSource/ocast-go/pkg/session"
)

// Delegate receives the devices a Center manages. Calls are serialized.
// Devices whose manufacturer is not registered, or whose session could not
// be created, are not reported.
type Delegate interface {
	DevicesAdded(devices []discovery.Device)
	DevicesRemoved(devices []discovery.Device)
	DiscoveryStopped(err error)
}

// Config configures a Center.
type Config struct {
	// Discovery configures the engine. Empty SearchTargets are taken from
	// the registry.
	Discovery discovery.Config

	Logger *slog.Logger
}

// DefaultConfig returns the default center configuration.
func DefaultConfig() Config {
	return Config{Discovery: discovery.DefaultConfig()}
}

type managed struct {
	device  discovery.Device
	session *session.Session
}

// Center owns a discovery engine and one session per supported device.
type Center struct {
	registry *Registry
	engine   *discovery.Engine
	delegate Delegate
	logger   *slog.Logger

	mu      sync.RWMutex
	managed map[string]*managed
}

// New creates a stopped center. resolver fetches device descriptors, which
// carry the manufacturer used to pick a factory.
func New(registry *Registry, transport discovery.Transport, resolver discovery.DescriptorResolver, delegate Delegate, config Config) *Center {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(config.Discovery.SearchTargets) == 0 {
		config.Discovery.SearchTargets = registry.SearchTargets()
	}
	if config.Discovery.Logger == nil {
		config.Discovery.Logger = logger
	}

	c := &Center{
		registry: registry,
		delegate: delegate,
		logger:   logger,
		managed:  make(map[string]*managed),
	}
	c.engine = discovery.NewEngine(config.Discovery, transport, resolver, c)
	return c
}

// Start starts, or resumes, discovery.
func (c *Center) Start() error {
	return c.engine.Resume()
}

// Pause suspends discovery. Known devices and their sessions are kept.
func (c *Center) Pause() {
	c.engine.Pause()
}

// Stop ends discovery and closes every session. It returns once the
// delegate has been told.
func (c *Center) Stop() {
	c.engine.Stop()
	c.engine.Wait()
}

// Session returns the session of the device with id.
func (c *Center) Session(id string) (*session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managed[id]
	if !ok {
		return nil, false
	}
	return m.session, true
}

// Devices returns the managed devices ordered by id.
func (c *Center) Devices() []discovery.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]discovery.Device, 0, len(c.managed))
	for _, m := range c.managed {
		out = append(out, m.device)
	}
	slices.SortFunc(out, func(a, b discovery.Device) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// DevicesAdded implements discovery.Delegate.
func (c *Center) DevicesAdded(devices []discovery.Device) {
	var added []discovery.Device
	for _, d := range devices {
		factory, ok := c.registry.Lookup(d.Manufacturer)
		if !ok {
			c.logger.Debug("ignoring device", "device", d.ID, "manufacturer", d.Manufacturer)
			continue
		}
		c.mu.RLock()
		_, known := c.managed[d.ID]
		c.mu.RUnlock()
		if known {
			continue
		}

		s, err := factory(d)
		if err != nil {
			c.logger.Warn("session creation failed", "device", d.ID, "error", err)
			continue
		}
		c.mu.Lock()
		c.managed[d.ID] = &managed{device: d, session: s}
		c.mu.Unlock()
		c.logger.Info("device added", "device", d.ID, "name", d.FriendlyName, "host", d.Host)
		added = append(added, d)
	}
	if len(added) > 0 && c.delegate != nil {
		c.delegate.DevicesAdded(added)
	}
}

// DevicesRemoved implements discovery.Delegate.
func (c *Center) DevicesRemoved(devices []discovery.Device) {
	var removed []*managed
	c.mu.Lock()
	for _, d := range devices {
		if m, ok := c.managed[d.ID]; ok {
			delete(c.managed, d.ID)
			removed = append(removed, m)
		}
	}
	c.mu.Unlock()

	c.release(removed)
}

// DiscoveryStopped implements discovery.Delegate.
func (c *Center) DiscoveryStopped(err error) {
	c.mu.Lock()
	removed := make([]*managed, 0, len(c.managed))
	for _, m := range c.managed {
		removed = append(removed, m)
	}
	clear(c.managed)
	c.mu.Unlock()

	c.release(removed)
	if err != nil {
		c.logger.Warn("discovery stopped", "error", err)
	}
	if c.delegate != nil {
		c.delegate.DiscoveryStopped(err)
	}
}

// release closes the sessions of removed devices and reports them.
func (c *Center) release(removed []*managed) {
	if len(removed) == 0 {
		return
	}
	var wg sync.WaitGroup
	devices := make([]discovery.Device, 0, len(removed))
	for _, m := range removed {
		devices = append(devices, m.device)
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			s.Close()
		}(m.session)
		c.logger.Info("device removed", "device", m.device.ID)
	}
	wg.Wait()

	slices.SortFunc(devices, func(a, b discovery.Device) int { return strings.Compare(a.ID, b.ID) })
	if c.delegate != nil {
		c.delegate.DevicesRemoved(devices)
	}
}

var _ discovery.Delegate = (*Center)(nil)
