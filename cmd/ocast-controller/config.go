package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Orange-OpenSource/ocast-go/pkg/center"
	"github.com/Orange-OpenSource/ocast-go/pkg/discovery"
	"github.com/Orange-OpenSource/ocast-go/pkg/session"
	"github.com/Orange-OpenSource/ocast-go/pkg/socket"
)

// Discovery transports.
const (
	TransportSSDP = "ssdp"
	TransportMDNS = "mdns"
)

// DefaultManufacturer is the receiver vendor supported out of the box.
const DefaultManufacturer = "Orange SA"

// Config holds the controller configuration. Fields can be set from a
// YAML file and overridden by flags.
type Config struct {
	Application     string        `yaml:"application"`
	Manufacturers   []string      `yaml:"manufacturers"`
	SearchTarget    string        `yaml:"searchTarget"`
	Transport       string        `yaml:"transport"`
	Interface       string        `yaml:"interface"`
	Interval        time.Duration `yaml:"interval"`
	LaunchTimeout   time.Duration `yaml:"launchTimeout"`
	PrivateSettings bool          `yaml:"privateSettings"`
	Reconnect       bool          `yaml:"reconnect"`
	Interactive     bool          `yaml:"interactive"`
	LogLevel        string        `yaml:"logLevel"`

	// CaptureFile receives the protocol capture (CBOR), viewable with
	// ocast-log.
	CaptureFile string `yaml:"captureFile"`

	TLS TLSFileConfig `yaml:"tls"`
}

// TLSFileConfig locates the certificates used on links.
type TLSFileConfig struct {
	CAFile   string `yaml:"caFile"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`

	// Verify checks receiver certificates against CAFile or the system
	// pool. Receivers usually present self-signed certificates.
	Verify bool `yaml:"verify"`
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		Application:   "Orange-DefaultReceiver-DEV",
		Manufacturers: []string{DefaultManufacturer},
		SearchTarget:  discovery.SearchTargetOCast,
		Transport:     TransportSSDP,
		Interval:      discovery.DefaultInterval,
		LaunchTimeout: session.DefaultLaunchTimeout,
		Interactive:   true,
		LogLevel:      "info",
	}
}

// loadConfig reads a YAML file over base.
func loadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportSSDP, TransportMDNS:
	default:
		return fmt.Errorf("unknown transport %q (use: %s, %s)", c.Transport, TransportSSDP, TransportMDNS)
	}
	if len(c.Manufacturers) == 0 {
		return errors.New("at least one manufacturer is required")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("tls certFile and keyFile go together")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SessionConfig returns the session configuration for every device.
func (c Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ApplicationName = c.Application
	cfg.LaunchTimeout = c.LaunchTimeout
	cfg.PrivateSettingsAllowed = c.PrivateSettings
	cfg.Reconnect = c.Reconnect
	return cfg
}

// CenterConfig returns the discovery settings.
func (c Config) CenterConfig() center.Config {
	cfg := center.DefaultConfig()
	cfg.Discovery.SearchTargets = nil
	cfg.Discovery.Interval = c.Interval
	return cfg
}

// TLSConfig builds the link TLS configuration.
func (c Config) TLSConfig() (*tls.Config, error) {
	cfg := &socket.TLSConfig{InsecureSkipVerify: !c.TLS.Verify}
	if c.TLS.CAFile != "" {
		pool, err := socket.LoadCertPool(c.TLS.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if c.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificate = &cert
	}
	return socket.NewClientTLSConfig(cfg)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use: debug, info, warn, error)", s)
	}
}
