package log

import (
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.olog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: "c"})
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	if n := countEvents(t, path, Filter{}); n != 2 {
		t.Errorf("got %d events, want 2", n)
	}
}

func TestFileLoggerConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.olog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				logger.Log(Event{Timestamp: time.Now(), Layer: LayerLink, Message: &MessageEvent{Type: "event", ID: i}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	if n := countEvents(t, path, Filter{}); n != 200 {
		t.Errorf("got %d events, want 200", n)
	}
	if logger.Dropped() != 0 {
		t.Errorf("dropped %d events", logger.Dropped())
	}
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.olog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Close()
	logger.Log(Event{Timestamp: time.Now()})

	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	if n := countEvents(t, path, Filter{}); n != 0 {
		t.Errorf("got %d events, want 0", n)
	}
}

func countEvents(t *testing.T, path string, filter Filter) int {
	t.Helper()
	r, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer r.Close()

	n := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			return n
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		n++
	}
}
