package log

import (
	"sync"
	"testing"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{ConnectionID: "x"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("got %d and %d events, want 1 each", len(a.events), len(b.events))
	}
	if b.events[0].ConnectionID != "x" {
		t.Errorf("ConnectionID: got %q", b.events[0].ConnectionID)
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	r := &recordingLogger{}
	if OrNoop(r) != Logger(r) {
		t.Error("OrNoop should return a non-nil logger unchanged")
	}
}
