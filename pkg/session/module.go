package session

import (
	"crypto/tls"

	"github.com/Orange-OpenSource/ocast-go/pkg/transport"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// Module is a logical connection target of a session.
type Module uint8

const (
	ModuleApplication Module = iota
	ModulePublicSettings
	ModulePrivateSettings
)

var allModules = []Module{ModuleApplication, ModulePublicSettings, ModulePrivateSettings}

// String returns the module name.
func (m Module) String() string {
	switch m {
	case ModuleApplication:
		return "APPLICATION"
	case ModulePublicSettings:
		return "PUBLIC_SETTINGS"
	case ModulePrivateSettings:
		return "PRIVATE_SETTINGS"
	default:
		return "UNKNOWN"
	}
}

// Domain returns the link domain the module carries.
func (m Module) Domain() string {
	if m == ModuleApplication {
		return wire.DomainBrowser
	}
	return wire.DomainSettings
}

func (m Module) valid() bool {
	return m <= ModulePrivateSettings
}

// State is the connection state of a module.
type State uint8

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

// binding ties a module to the link it uses.
type binding struct {
	state          State
	url            string
	tls            *tls.Config
	link           *transport.Link
	connectDone    []func(error)
	disconnectDone []func(error)

	// pending holds the completions of commands sent through this module,
	// keyed by a session-wide token.
	pending map[uint64]func(transport.Result)
}

func (b *binding) takePending() map[uint64]func(transport.Result) {
	p := b.pending
	b.pending = nil
	return p
}
