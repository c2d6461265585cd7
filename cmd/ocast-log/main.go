// Command ocast-log views and analyzes OCast protocol captures.
//
// Captures are written by ocast-controller when started with -capture.
//
// Usage:
//
//	ocast-log <command> [flags] <file.ocap>
//
// Commands:
//
//	view     Print events in human-readable form
//	export   Convert a capture to JSONL or CSV
//	filter   Copy matching events to a new capture
//	stats    Summarize a capture
//
// Examples:
//
//	# Commands and replies of the media service only
//	ocast-log view -service org.ocast.media receiver.ocap
//
//	# Keep-alive traffic of one link
//	ocast-log filter -conn-id 3f2a9c1e -category control -o ka.ocap receiver.ocap
//
//	# Spreadsheet-friendly dump
//	ocast-log export -format csv -o receiver.csv receiver.ocap
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Orange-OpenSource/ocast-go/cmd/ocast-log/commands"
)

const usage = `ocast-log - OCast Protocol Capture Analyzer

Usage:
  ocast-log <command> [flags] <file.ocap>

Commands:
  view     Print events in human-readable form
  export   Convert a capture to JSONL or CSV
  filter   Copy matching events to a new capture
  stats    Summarize a capture

Use "ocast-log <command> -help" for more information about a command.
`

var commandTable = map[string]func(args []string) error{
	"view":   runView,
	"export": runExport,
	"filter": runFilter,
	"stats":  runStats,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	}

	run, ok := commandTable[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err := run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set whose usage names the command.
func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "ocast-log %s - %s\n\nUsage:\n  ocast-log %s [flags] <file.ocap>\n\nFlags:\n",
			name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// capturePath parses args and returns the single positional argument.
func capturePath(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("capture file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := newFlagSet("view", "Print events in human-readable form")
	layer := fs.String("layer", "", "Filter by layer (socket, link, session)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error)")
	deviceID := fs.String("device-id", "", "Filter by device ID")
	domain := fs.String("domain", "", "Filter by message domain")
	service := fs.String("service", "", "Filter by service (e.g. org.ocast.media)")

	path, err := capturePath(fs, args)
	if err != nil {
		return err
	}

	filter := commands.ViewFilter{DeviceID: *deviceID, Domain: *domain, Service: *service}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}

	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Convert a capture to JSONL or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path, err := capturePath(fs, args)
	if err != nil {
		return err
	}

	w := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return commands.RunExport(path, *format, w)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Copy matching events to a new capture")
	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.DeviceID, "device-id", "", "Filter by device ID")
	fs.StringVar(&opts.Domain, "domain", "", "Filter by message domain")
	fs.StringVar(&opts.Service, "service", "", "Filter by service")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (socket, link, session)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")

	path, err := capturePath(fs, args)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", n, opts.Output)
	return nil
}

func runStats(args []string) error {
	path, err := capturePath(newFlagSet("stats", "Summarize a capture"), args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
