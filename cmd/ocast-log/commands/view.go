// Package commands implements the ocast-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	DeviceID  string
	Domain    string
	Service   string
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
		DeviceID:  f.DeviceID,
		Domain:    f.Domain,
		Service:   f.Service,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format(timestampLayout)
	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, shortenID(event.ConnectionID), event.Direction, layer, eventType(event))

	if event.URL != "" || event.Domain != "" {
		fmt.Fprintf(w, "  Link: %s", event.URL)
		if event.Domain != "" {
			fmt.Fprintf(w, " (%s)", event.Domain)
		}
		fmt.Fprintln(w)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		formatControlDetails(w, event.ControlMsg)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// eventType labels an event by its payload.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return strings.ToUpper(event.Message.Type)
	case event.StateChange != nil:
		return "State"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of an id.
func shortenID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", frame.Data)
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  ID: %d  %s -> %s\n", msg.ID, msg.Source, msg.Destination)
	if msg.Service != "" || msg.Name != "" {
		fmt.Fprintf(w, "  Service: %s  Name: %s\n", msg.Service, msg.Name)
	}
	if msg.Status != "" {
		fmt.Fprintf(w, "  Status: %s\n", msg.Status)
	}
	if msg.RoundTrip != nil {
		fmt.Fprintf(w, "  RoundTrip: %s\n", formatDuration(*msg.RoundTrip))
	}
	if msg.Params != "" && msg.Params != "{}" {
		fmt.Fprintf(w, "  Params: %s\n", msg.Params)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatControlDetails(w io.Writer, ctrl *log.ControlMsgEvent) {
	if ctrl.Missed > 0 {
		fmt.Fprintf(w, "  Missed: %d\n", ctrl.Missed)
	}
	if ctrl.CloseCode != nil {
		fmt.Fprintf(w, "  CloseCode: %d\n", *ctrl.CloseCode)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Kind != "" {
		fmt.Fprintf(w, "  Kind: %s\n", err.Kind)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	if l, ok := log.ParseLayer(strings.ToUpper(s)); ok {
		return l, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be socket, link or session)", s)
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	if c, ok := log.ParseCategory(strings.ToUpper(s)); ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, control, state or error)", s)
}

// RunView prints the events of the capture at path that match filter.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
