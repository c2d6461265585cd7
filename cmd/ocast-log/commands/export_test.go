package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
)

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleCapture())

	var buf bytes.Buffer
	if err := RunExport(path, "jsonl", &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}

	var first log.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if first.Message == nil || first.Message.Name != "prepare" || first.Message.ID != 7 {
		t.Errorf("first event message = %+v", first.Message)
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleCapture())

	var buf bytes.Buffer
	if err := RunExport(path, "csv", &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want header + 4", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("header = %v", records[0])
	}

	reply := records[2]
	want := []string{"IN", "LINK", "MESSAGE", "uuid:receiver-1", "browser", "REPLY", "7", "org.ocast.media", "prepare", "ok", "12.000"}
	if got := reply[2:]; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("reply record = %v, want %v", got, want)
	}

	ping := records[4]
	if ping[7] != "PING" || ping[8] != "" {
		t.Errorf("ping record = %v", ping)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sampleCapture())
	if err := RunExport(path, "xml", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
