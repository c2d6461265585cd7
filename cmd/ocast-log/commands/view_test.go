package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ocap")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

var captureStart = time.Date(2026, 3, 4, 18, 30, 12, 250000000, time.UTC)

const linkURL = "wss://192.168.1.20:4433/ocast"

// sampleCapture is a prepare command, its reply, a player event and a ping.
func sampleCapture() []log.Event {
	rtt := 12 * time.Millisecond
	return []log.Event{
		{
			Timestamp:    captureStart,
			ConnectionID: "link-0001-aaaa",
			Direction:    log.DirectionOut,
			Layer:        log.LayerLink,
			Category:     log.CategoryMessage,
			URL:          linkURL,
			DeviceID:     "uuid:receiver-1",
			Domain:       "browser",
			Message: &log.MessageEvent{
				Type: "command", ID: 7,
				Destination: "browser", Source: "ocast-go",
				Service: "org.ocast.media", Name: "prepare",
				Params: `{"url":"http://media/clip.mp4"}`,
			},
		},
		{
			Timestamp:    captureStart.Add(rtt),
			ConnectionID: "link-0001-aaaa",
			Direction:    log.DirectionIn,
			Layer:        log.LayerLink,
			Category:     log.CategoryMessage,
			URL:          linkURL,
			DeviceID:     "uuid:receiver-1",
			Domain:       "browser",
			Message: &log.MessageEvent{
				Type: "reply", ID: 7,
				Destination: "ocast-go", Source: "browser",
				Service: "org.ocast.media", Name: "prepare",
				Status: "ok", Params: `{"code":0}`, RoundTrip: &rtt,
			},
		},
		{
			Timestamp:    captureStart.Add(time.Second),
			ConnectionID: "link-0001-aaaa",
			Direction:    log.DirectionIn,
			Layer:        log.LayerLink,
			Category:     log.CategoryMessage,
			URL:          linkURL,
			DeviceID:     "uuid:receiver-1",
			Domain:       "browser",
			Message: &log.MessageEvent{
				Type: "event", ID: 1,
				Destination: "*", Source: "browser",
				Service: "org.ocast.media", Name: "playbackStatus",
				Params: `{"state":2}`,
			},
		},
		{
			Timestamp:    captureStart.Add(5 * time.Second),
			ConnectionID: "link-0001-aaaa",
			Direction:    log.DirectionOut,
			Layer:        log.LayerSocket,
			Category:     log.CategoryControl,
			URL:          linkURL,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing},
		},
	}
}

func TestViewFormatsMessages(t *testing.T) {
	path := createTestLogFile(t, sampleCapture())

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"2026-03-04T18:30:12.250000Z [conn:link-000] OUT LINK COMMAND",
		"Link: " + linkURL + " (browser)",
		"ID: 7  ocast-go -> browser",
		"Service: org.ocast.media  Name: prepare",
		`Params: {"url":"http://media/clip.mp4"}`,
		"IN  LINK REPLY",
		"Status: ok",
		"RoundTrip: 12.000ms",
		"IN  LINK EVENT",
		"OUT CTRL PING",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestViewFilter(t *testing.T) {
	path := createTestLogFile(t, sampleCapture())

	dir := log.DirectionIn
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Direction: &dir, Service: "org.ocast.media"}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "COMMAND") || strings.Contains(out, "PING") {
		t.Errorf("outgoing events should be filtered out:\n%s", out)
	}
	if !strings.Contains(out, "REPLY") || !strings.Contains(out, "EVENT") {
		t.Errorf("incoming media events missing:\n%s", out)
	}
}

func TestViewStateAndError(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		{
			Timestamp:    captureStart,
			ConnectionID: "sess-1",
			Layer:        log.LayerSession,
			Category:     log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityModule,
				OldState: "connecting",
				NewState: "connected",
			},
		},
		{
			Timestamp:    captureStart.Add(time.Second),
			ConnectionID: "link-2",
			Direction:    log.DirectionIn,
			Layer:        log.LayerLink,
			Category:     log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerLink,
				Message: "link-fatal frame received",
				Kind:    "LinkFatal",
			},
		},
	})

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"SESSION State",
		"connecting -> connected",
		"LINK Error",
		"Message: link-fatal frame received",
		"Kind: LinkFatal",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "nope.ocap"), ViewFilter{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("link"); err != nil || l != log.LayerLink {
		t.Errorf("ParseLayerFlag(link) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("ParseLayerFlag(wire) should fail")
	}
	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(OUT) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("ParseDirectionFlag(sideways) should fail")
	}
	if c, err := ParseCategoryFlag("control"); err != nil || c != log.CategoryControl {
		t.Errorf("ParseCategoryFlag(control) = %v, %v", c, err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Microsecond, "500.000us"},
		{12 * time.Millisecond, "12.000ms"},
		{1500 * time.Millisecond, "1.500s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
