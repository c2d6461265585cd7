package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
)

var csvHeader = []string{
	"timestamp", "connection_id", "direction", "layer", "category",
	"device_id", "domain", "type", "id", "service", "name", "status", "rtt_ms",
}

// RunExport writes every event of the capture at path to w in format
// (jsonl or csv).
func RunExport(path, format string, w io.Writer) error {
	var write func(log.Event) error
	var flush func() error

	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		write = func(e log.Event) error { return enc.Encode(e) }
		flush = func() error { return nil }
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		write = func(e log.Event) error { return cw.Write(csvRecord(e)) }
		flush = func() error {
			cw.Flush()
			return cw.Error()
		}
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := write(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return flush()
}

func csvRecord(e log.Event) []string {
	var id, service, name, status, rtt string
	if m := e.Message; m != nil {
		id = strconv.Itoa(m.ID)
		service, name, status = m.Service, m.Name, m.Status
		if m.RoundTrip != nil {
			rtt = strconv.FormatFloat(float64(*m.RoundTrip)/float64(time.Millisecond), 'f', 3, 64)
		}
	}
	return []string{
		e.Timestamp.UTC().Format(timestampLayout),
		e.ConnectionID,
		e.Direction.String(),
		e.Layer.String(),
		e.Category.String(),
		e.DeviceID,
		e.Domain,
		eventType(e),
		id, service, name, status, rtt,
	}
}
