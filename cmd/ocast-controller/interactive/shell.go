// Package interactive provides the interactive command-line interface
// for the OCast controller.
package interactive

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/Orange-OpenSource/ocast-go/pkg/discovery"
	"github.com/Orange-OpenSource/ocast-go/pkg/session"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// commandTimeout bounds connect and lifecycle commands. Sends may wait
// for an application launch, which has its own timeout.
const commandTimeout = 30 * time.Second

// Center is what the shell needs from the composition root.
// *center.Center implements it.
type Center interface {
	Devices() []discovery.Device
	Session(id string) (*session.Session, bool)
}

// Shell handles interactive mode for ocast-controller.
type Shell struct {
	center Center
	tls    *tls.Config
	rl     *readline.Instance
	out    io.Writer
}

// New creates a shell driving the sessions of c over links secured with
// tlsConfig.
func New(c Center, tlsConfig *tls.Config) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ocast> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{center: c, tls: tlsConfig, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
func (sh *Shell) Stdout() io.Writer {
	return sh.rl.Stdout()
}

// Run starts the interactive command loop.
func (sh *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer sh.rl.Close()

	sh.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := sh.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(sh.out, "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			sh.printHelp()
		case "devices", "ls":
			sh.cmdDevices()
		case "connect", "c":
			sh.cmdConnect(ctx, args)
		case "disconnect", "d":
			sh.cmdDisconnect(ctx, args)
		case "send", "s":
			sh.cmdSend(ctx, input)
		case "start":
			sh.cmdStart(ctx, args)
		case "stop":
			sh.cmdStop(ctx, args)
		case "status":
			sh.cmdStatus(args)
		case "quit", "exit", "q":
			fmt.Fprintln(sh.out, "Exiting...")
			cancel()
			return
		default:
			fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (sh *Shell) printHelp() {
	fmt.Fprintln(sh.out, `
OCast Controller Commands:
  Receivers:
    devices                                    - List discovered receivers
    connect <device>                           - Connect a receiver
    disconnect <device>                        - Disconnect a receiver
    status [device]                            - Show session state

  Application:
    start <device>                             - Start the web application
    stop <device>                              - Stop the web application
    send <device> <domain> <service> <name> [params-json]
                                               - Send a command

  General:
    help                                       - Show this help
    quit                                       - Exit

  <device> is a list index, an id or an id prefix.`)
}

func (sh *Shell) cmdDevices() {
	devices := sh.center.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(sh.out, "No receivers found")
		return
	}
	fmt.Fprintf(sh.out, "\nReceivers (%d):\n", len(devices))
	for i, d := range devices {
		state := "-"
		if s, ok := sh.center.Session(d.ID); ok {
			state = s.State().String()
		}
		fmt.Fprintf(sh.out, "  %d. %s\n", i+1, d.FriendlyName)
		fmt.Fprintf(sh.out, "      ID: %s\n", d.ID)
		fmt.Fprintf(sh.out, "      Host: %s  Model: %s %s\n", d.Host, d.Manufacturer, d.ModelName)
		fmt.Fprintf(sh.out, "      State: %s\n", state)
	}
}

func (sh *Shell) session(args []string) (*session.Session, bool) {
	if len(args) < 1 {
		fmt.Fprintln(sh.out, "A device is required (see 'devices')")
		return nil, false
	}
	d, err := findDevice(sh.center.Devices(), args[0])
	if err != nil {
		fmt.Fprintf(sh.out, "Error: %v\n", err)
		return nil, false
	}
	s, ok := sh.center.Session(d.ID)
	if !ok {
		fmt.Fprintf(sh.out, "Error: no session for %s\n", d.ID)
		return nil, false
	}
	return s, true
}

func (sh *Shell) cmdConnect(ctx context.Context, args []string) {
	s, ok := sh.session(args)
	if !ok {
		return
	}
	s.SetFailureHandler(func(m session.Module, err error) {
		fmt.Fprintf(sh.out, "[EVENT] %s lost %s: %v\n", s.Device().ID, m, err)
	})
	for _, service := range []string{wire.ServiceMedia, wire.ServiceSettingsDevice, wire.ServiceSettingsInput} {
		s.RegisterService(service, sh.printEvent)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := s.ConnectContext(ctx, sh.tls); err != nil {
		fmt.Fprintf(sh.out, "Connect failed: %v\n", err)
	}
	sh.printSession(s)
}

func (sh *Shell) cmdDisconnect(ctx context.Context, args []string) {
	s, ok := sh.session(args)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := s.DisconnectContext(ctx); err != nil {
		fmt.Fprintf(sh.out, "Disconnect failed: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out, "Disconnected")
}

func (sh *Shell) cmdSend(ctx context.Context, input string) {
	args, err := parseSend(input)
	if err != nil {
		fmt.Fprintf(sh.out, "Error: %v\n", err)
		return
	}
	s, ok := sh.session([]string{args.device})
	if !ok {
		return
	}

	reply, err := s.SendContext(ctx, args.domain, args.message)
	if err != nil {
		fmt.Fprintf(sh.out, "Send failed (%s): %v\n", wire.KindOf(err), err)
		return
	}
	fmt.Fprintf(sh.out, "Reply: %s %s %s\n", reply.Service, reply.Data.Name, string(reply.Data.Params))
}

func (sh *Shell) cmdStart(ctx context.Context, args []string) {
	s, ok := sh.session(args)
	if !ok {
		return
	}
	fmt.Fprintf(sh.out, "Starting %s...\n", s.ApplicationName())
	if err := s.StartApplicationContext(ctx); err != nil {
		fmt.Fprintf(sh.out, "Start failed: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out, "Application running")
}

func (sh *Shell) cmdStop(ctx context.Context, args []string) {
	s, ok := sh.session(args)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := s.StopApplicationContext(ctx); err != nil {
		fmt.Fprintf(sh.out, "Stop failed: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out, "Application stopped")
}

func (sh *Shell) cmdStatus(args []string) {
	if len(args) == 0 {
		devices := sh.center.Devices()
		fmt.Fprintf(sh.out, "Receivers: %d\n", len(devices))
		for _, d := range devices {
			if s, ok := sh.center.Session(d.ID); ok {
				sh.printSession(s)
			}
		}
		return
	}
	if s, ok := sh.session(args); ok {
		sh.printSession(s)
	}
}

func (sh *Shell) printSession(s *session.Session) {
	fmt.Fprintf(sh.out, "%s (%s): %s, %d link(s)\n", s.Device().FriendlyName, s.Device().ID, s.State(), s.Links())
	for _, m := range []session.Module{session.ModuleApplication, session.ModulePublicSettings, session.ModulePrivateSettings} {
		line := fmt.Sprintf("  %-16s %s", m, s.ModuleState(m))
		if url := s.ModuleURL(m); url != "" {
			line += " " + url
		}
		fmt.Fprintln(sh.out, line)
	}
	fmt.Fprintf(sh.out, "  application      %s running=%t\n", s.ApplicationName(), s.ApplicationRunning())
}

func (sh *Shell) printEvent(e session.Event) {
	fmt.Fprintf(sh.out, "[EVENT] %s %s %s %s\n", e.Domain, e.Message.Service, e.Message.Data.Name, string(e.Message.Data.Params))
}

// findDevice resolves a 1-based index, an id or a unique id prefix.
func findDevice(devices []discovery.Device, ref string) (discovery.Device, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(devices) {
			return discovery.Device{}, fmt.Errorf("no device #%d", n)
		}
		return devices[n-1], nil
	}

	var match []discovery.Device
	for _, d := range devices {
		if d.ID == ref {
			return d, nil
		}
		if strings.HasPrefix(d.ID, ref) {
			match = append(match, d)
		}
	}
	switch len(match) {
	case 0:
		return discovery.Device{}, fmt.Errorf("unknown device %q", ref)
	case 1:
		return match[0], nil
	default:
		return discovery.Device{}, fmt.Errorf("%q matches %d devices", ref, len(match))
	}
}

type sendArgs struct {
	device  string
	domain  string
	message wire.Message
}

// parseSend splits "send <device> <domain> <service> <name> [params-json]".
// The params are the rest of the line so that they may contain spaces.
func parseSend(input string) (sendArgs, error) {
	fields := strings.Fields(input)
	if len(fields) < 5 {
		return sendArgs{}, errors.New("usage: send <device> <domain> <service> <name> [params-json]")
	}

	var params any
	rest := input
	for _, f := range fields[:5] {
		rest = strings.TrimSpace(rest)
		rest = strings.TrimPrefix(rest, f)
	}
	if raw := strings.TrimSpace(rest); raw != "" {
		if !json.Valid([]byte(raw)) {
			return sendArgs{}, fmt.Errorf("params are not valid JSON: %s", raw)
		}
		params = json.RawMessage(raw)
	}

	msg, err := wire.NewMessage(fields[3], fields[4], params)
	if err != nil {
		return sendArgs{}, err
	}
	return sendArgs{device: fields[1], domain: fields[2], message: msg}, nil
}
