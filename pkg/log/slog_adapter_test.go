package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func newJSONAdapter(buf *bytes.Buffer, level slog.Level) *SlogAdapter {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return NewSlogAdapter(slog.New(handler))
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, slog.LevelDebug)

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerLink,
		Category:     CategoryMessage,
		Domain:       "browser",
		Message: &MessageEvent{
			Type:    "reply",
			ID:      12,
			Service: "org.ocast.media",
			Name:    "playbackStatus",
			Status:  "OK",
		},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	checks := map[string]any{
		"msg":       "protocol",
		"conn_id":   "conn-1",
		"direction": "IN",
		"layer":     "LINK",
		"domain":    "browser",
		"type":      "reply",
		"id":        float64(12),
		"service":   "org.ocast.media",
		"status":    "OK",
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s: got %v, want %v", k, entry[k], want)
		}
	}
}

func TestSlogAdapterLogsErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, slog.LevelDebug)

	adapter.Log(Event{
		Layer:    LayerLink,
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerLink, Message: "keep-alive timeout", Kind: "NETWORK"},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["error_msg"] != "keep-alive timeout" {
		t.Errorf("error_msg: got %v", entry["error_msg"])
	}
	if entry["error_kind"] != "NETWORK" {
		t.Errorf("error_kind: got %v", entry["error_kind"])
	}
}

func TestSlogAdapterSkipsBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, slog.LevelInfo)

	adapter.Log(Event{ControlMsg: &ControlMsgEvent{Type: ControlMsgPing}})

	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got %s", buf.String())
	}
}
