// Command ocast-controller discovers cast receivers on the local network
// and drives them from an interactive shell.
//
// Usage:
//
//	ocast-controller [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-app string           Receiver web application (default "Orange-DefaultReceiver-DEV")
//	-transport string     Discovery transport: ssdp, mdns (default "ssdp")
//	-interface string     Network interface for discovery
//	-private-settings     Connect the private settings module
//	-reconnect            Reconnect lost modules with backoff
//	-capture string       Write a protocol capture to this file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-interactive          Enable interactive command mode (default true)
//
// Examples:
//
//	# Discover receivers and open the shell
//	ocast-controller
//
//	# Use mDNS and record the traffic for ocast-log
//	ocast-controller -transport mdns -capture /tmp/receiver.ocap
//
// Interactive Commands:
//
//	devices                  - List discovered receivers
//	connect <device>         - Connect a receiver
//	disconnect <device>      - Disconnect a receiver
//	send <device> <domain> <service> <name> [params-json]
//	start <device>           - Start the web application
//	stop <device>            - Stop the web application
//	status [device]          - Show session state
//	quit                     - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Orange-OpenSource/ocast-go/cmd/ocast-controller/interactive"
	"github.com/Orange-OpenSource/ocast-go/pkg/center"
	"github.com/Orange-OpenSource/ocast-go/pkg/dial"
	"github.com/Orange-OpenSource/ocast-go/pkg/discovery"
	ocastlog "github.com/Orange-OpenSource/ocast-go/pkg/log"
)

var (
	configFile string
	flags      = DefaultConfig()
)

func init() {
	flag.StringVar(&configFile, "config", "", "YAML configuration file")
	flag.StringVar(&flags.Application, "app", flags.Application, "Receiver web application")
	flag.StringVar(&flags.Transport, "transport", flags.Transport, "Discovery transport: ssdp, mdns")
	flag.StringVar(&flags.Interface, "interface", "", "Network interface for discovery")
	flag.BoolVar(&flags.PrivateSettings, "private-settings", false, "Connect the private settings module")
	flag.BoolVar(&flags.Reconnect, "reconnect", false, "Reconnect lost modules with backoff")
	flag.StringVar(&flags.CaptureFile, "capture", "", "Write a protocol capture to this file")
	flag.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.Interactive, "interactive", flags.Interactive, "Enable interactive command mode")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	config, err := resolveConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, _ := parseLevel(config.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	setupLogging(config.LogLevel)

	log.Println("OCast Controller")
	log.Println("================")
	log.Printf("Application: %s", config.Application)
	log.Printf("Transport: %s", config.Transport)

	tlsConfig, err := config.TLSConfig()
	if err != nil {
		log.Fatalf("Failed to load TLS configuration: %v", err)
	}

	sessionConfig := config.SessionConfig()
	sessionConfig.Logger = logger
	if config.CaptureFile != "" {
		capture, err := ocastlog.NewFileLogger(config.CaptureFile)
		if err != nil {
			log.Fatalf("Failed to open capture file: %v", err)
		}
		defer capture.Close()
		sessionConfig.ProtocolLogger = capture
		log.Printf("Capturing protocol traffic to %s", config.CaptureFile)
	}

	dialConfig := dial.DefaultConfig()
	dialConfig.Logger = logger
	factory := center.SessionFactory(sessionConfig, dialConfig)

	registry := center.NewRegistry()
	for _, m := range config.Manufacturers {
		if err := registry.Register(m, config.SearchTarget, factory); err != nil {
			log.Fatalf("Failed to register %s: %v", m, err)
		}
	}

	centerConfig := config.CenterConfig()
	centerConfig.Logger = logger
	c := center.New(registry, newTransport(config, logger), dial.NewResolver(dialConfig), deviceLogger{}, centerConfig)

	if err := c.Start(); err != nil {
		log.Fatalf("Failed to start discovery: %v", err)
	}
	log.Printf("Discovery started (targets: %v)", registry.SearchTargets())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Interactive {
		shell, err := interactive.New(c, tlsConfig)
		if err != nil {
			log.Fatalf("Failed to create interactive shell: %v", err)
		}
		log.SetOutput(shell.Stdout())
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	c.Stop()
	log.Println("Goodbye!")
}

// resolveConfig layers the config file, then explicitly set flags, over
// the defaults.
func resolveConfig() (Config, error) {
	config := DefaultConfig()
	if configFile != "" {
		var err error
		if config, err = loadConfig(configFile, config); err != nil {
			return config, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "app":
			config.Application = flags.Application
		case "transport":
			config.Transport = flags.Transport
		case "interface":
			config.Interface = flags.Interface
		case "private-settings":
			config.PrivateSettings = flags.PrivateSettings
		case "reconnect":
			config.Reconnect = flags.Reconnect
		case "capture":
			config.CaptureFile = flags.CaptureFile
		case "log-level":
			config.LogLevel = flags.LogLevel
		case "interactive":
			config.Interactive = flags.Interactive
		}
	})
	return config, config.Validate()
}

func newTransport(config Config, logger *slog.Logger) discovery.Transport {
	if config.Transport == TransportMDNS {
		mdns := discovery.DefaultMDNSConfig()
		mdns.ServiceTypes = map[string]string{discovery.ServiceTypeOCast: config.SearchTarget}
		mdns.Interface = config.Interface
		mdns.Logger = logger
		return discovery.NewMDNSTransport(mdns)
	}
	return discovery.NewSSDPTransport(discovery.SSDPConfig{
		Interface: config.Interface,
		Logger:    logger,
	})
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	if level == "debug" {
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	}
}

// deviceLogger prints center notifications.
type deviceLogger struct{}

func (deviceLogger) DevicesAdded(devices []discovery.Device) {
	for _, d := range devices {
		log.Printf("[EVENT] Receiver found: %s (%s, host: %s)", d.FriendlyName, d.ID, d.Host)
	}
}

func (deviceLogger) DevicesRemoved(devices []discovery.Device) {
	for _, d := range devices {
		log.Printf("[EVENT] Receiver lost: %s (%s)", d.FriendlyName, d.ID)
	}
}

func (deviceLogger) DiscoveryStopped(err error) {
	if err != nil {
		log.Printf("[EVENT] Discovery stopped: %v", err)
		return
	}
	log.Println("[EVENT] Discovery stopped")
}

var _ center.Delegate = deviceLogger{}
