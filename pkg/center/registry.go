package center

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Orange-OpenSource/ocast-go/pkg/dial"
	"github.com/Orange-OpenSource/ocast-go/pkg/discovery"
	"github.com/Orange-OpenSource/ocast-go/pkg/session"
)

// Registry errors.
var (
	ErrEmptyManufacturer = errors.New("center: empty manufacturer")
	ErrNilFactory        = errors.New("center: nil session factory")
	ErrAlreadyRegistered = errors.New("center: manufacturer already registered")
)

// Factory creates the session for a discovered device.
type Factory func(device discovery.Device) (*session.Session, error)

type registration struct {
	manufacturer string
	searchTarget string
	factory      Factory
}

// Registry maps manufacturers to session factories. Manufacturer names
// are matched case-insensitively.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register binds manufacturer to f. searchTarget is added to the targets
// discovery looks for; empty means discovery.SearchTargetOCast.
func (r *Registry) Register(manufacturer, searchTarget string, f Factory) error {
	key := registryKey(manufacturer)
	if key == "" {
		return ErrEmptyManufacturer
	}
	if f == nil {
		return ErrNilFactory
	}
	if searchTarget == "" {
		searchTarget = discovery.SearchTargetOCast
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, manufacturer)
	}
	r.entries[key] = registration{
		manufacturer: strings.TrimSpace(manufacturer),
		searchTarget: searchTarget,
		factory:      f,
	}
	r.order = append(r.order, key)
	return nil
}

// Lookup returns the factory registered for manufacturer.
func (r *Registry) Lookup(manufacturer string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[registryKey(manufacturer)]
	if !ok {
		return nil, false
	}
	return e.factory, true
}

// SearchTargets returns the distinct search targets of every
// registration, in registration order.
func (r *Registry) SearchTargets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, key := range r.order {
		if st := r.entries[key].searchTarget; !slices.Contains(out, st) {
			out = append(out, st)
		}
	}
	return out
}

// Manufacturers returns the registered manufacturer names.
func (r *Registry) Manufacturers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entries[key].manufacturer)
	}
	return out
}

func registryKey(manufacturer string) string {
	return strings.ToLower(strings.TrimSpace(manufacturer))
}

// SessionFactory returns a Factory creating sessions with config. Devices
// announcing a lifecycle base URL get a DIAL client built from
// dialConfig as their lifecycle service.
func SessionFactory(config session.Config, dialConfig dial.Config) Factory {
	return func(device discovery.Device) (*session.Session, error) {
		if device.Host == "" && config.SettingsURL == "" {
			return nil, fmt.Errorf("%w: device %s has no host", session.ErrNoEndpoint, device.ID)
		}
		var lifecycle session.Lifecycle
		if device.BaseURL != "" {
			lifecycle = dial.NewClient(device.BaseURL, dialConfig)
		}
		return session.New(device, lifecycle, config), nil
	}
}
