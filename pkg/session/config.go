package session

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/connection"
	"github.com/Orange-OpenSource/ocast-go/pkg/log"
	"github.com/Orange-OpenSource/ocast-go/pkg/socket"
	"github.com/Orange-OpenSource/ocast-go/pkg/transport"
)

// Defaults.
const (
	// DefaultLaunchTimeout bounds the wait for the connectedStatus event
	// after the application was started.
	DefaultLaunchTimeout = 60 * time.Second

	// DefaultLifecycleTimeout bounds one request to the lifecycle service.
	DefaultLifecycleTimeout = 10 * time.Second

	DefaultLinkPort        = 4433
	DefaultPrivateLinkPort = 4434
	DefaultLinkPath        = "/ocast"
)

// Config configures a Session.
type Config struct {
	// ApplicationName is the receiver web application to drive. Without
	// it the application module is not connected by Connect.
	ApplicationName string

	LaunchTimeout    time.Duration
	LifecycleTimeout time.Duration

	// PrivateSettingsAllowed connects the private settings module and
	// lets settings-domain events through.
	PrivateSettingsAllowed bool

	// SettingsURL and PrivateSettingsURL override the endpoints derived
	// from the device host.
	SettingsURL        string
	PrivateSettingsURL string

	// Identity is the source of every command. Empty picks a random UUID.
	Identity string

	// Reconnect restores failed modules with backoff.
	Reconnect            bool
	Backoff              connection.BackoffConfig
	MaxReconnectAttempts int

	Link          transport.Config
	SocketFactory socket.Factory

	ProtocolLogger log.Logger
	Logger         *slog.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		LaunchTimeout:    DefaultLaunchTimeout,
		LifecycleTimeout: DefaultLifecycleTimeout,
		Backoff:          connection.DefaultBackoffConfig(),
		Link:             transport.DefaultConfig(),
	}
}

// LinkURL returns the receiver link endpoint on host and port.
func LinkURL(host string, port int) string {
	return "wss://" + net.JoinHostPort(host, strconv.Itoa(port)) + DefaultLinkPath
}
