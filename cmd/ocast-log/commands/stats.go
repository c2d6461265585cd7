package commands

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// Stats holds aggregate statistics about a capture.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Links             map[string]*LinkStats
	Services          map[string]*ServiceStats
	Errors            int
	LinkFatal         int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// LinkStats holds statistics for one link.
type LinkStats struct {
	URL       string
	DeviceID  string
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Pings     int
	Pongs     int
}

// ServiceStats holds command statistics for one service.
type ServiceStats struct {
	Commands  int
	Replies   int
	Failed    int
	Events    int
	TotalRTT  time.Duration
	MaxRTT    time.Duration
	rttSample int
}

// AverageRTT returns the mean reply round trip.
func (s *ServiceStats) AverageRTT() time.Duration {
	if s.rttSample == 0 {
		return 0
	}
	return s.TotalRTT / time.Duration(s.rttSample)
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Links:             make(map[string]*LinkStats),
		Services:          make(map[string]*ServiceStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	// Session events carry the session id, not a link id.
	if event.Layer != log.LayerSession {
		link, ok := s.Links[event.ConnectionID]
		if !ok {
			link = &LinkStats{URL: event.URL, FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Links[event.ConnectionID] = link
		}
		link.Events++
		if event.Timestamp.After(link.LastSeen) {
			link.LastSeen = event.Timestamp
		}
		if link.DeviceID == "" {
			link.DeviceID = event.DeviceID
		}
		if event.ControlMsg != nil {
			switch event.ControlMsg.Type {
			case log.ControlMsgPing:
				link.Pings++
			case log.ControlMsgPong:
				link.Pongs++
			}
		}
	}

	if msg := event.Message; msg != nil {
		if msg.ID == wire.LinkFatalID {
			s.LinkFatal++
		}
		svc, ok := s.Services[msg.Service]
		if !ok {
			svc = &ServiceStats{}
			s.Services[msg.Service] = svc
		}
		switch wire.FrameType(msg.Type) {
		case wire.FrameCommand:
			svc.Commands++
		case wire.FrameReply:
			svc.Replies++
			if !wire.IsOK(msg.Status) {
				svc.Failed++
			}
			if msg.RoundTrip != nil {
				svc.rttSample++
				svc.TotalRTT += *msg.RoundTrip
				svc.MaxRTT = max(svc.MaxRTT, *msg.RoundTrip)
			}
		case wire.FrameEvent:
			svc.Events++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the capture at path and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== OCast Protocol Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerSocket, log.LayerLink, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Services) > 0 {
		fmt.Fprintln(w, "Services:")
		names := make([]string, 0, len(stats.Services))
		for name := range stats.Services {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			svc := stats.Services[name]
			fmt.Fprintf(w, "  %s: %d commands, %d replies (%d failed), %d events\n",
				name, svc.Commands, svc.Replies, svc.Failed, svc.Events)
			if svc.rttSample > 0 {
				fmt.Fprintf(w, "           RTT avg %s, max %s\n", formatDuration(svc.AverageRTT()), formatDuration(svc.MaxRTT))
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Links: %d\n", len(stats.Links))
	if len(stats.Links) > 0 {
		ids := make([]string, 0, len(stats.Links))
		for id := range stats.Links {
			ids = append(ids, id)
		}
		slices.SortFunc(ids, func(a, b string) int {
			if c := stats.Links[a].FirstSeen.Compare(stats.Links[b].FirstSeen); c != 0 {
				return c
			}
			return strings.Compare(a, b)
		})

		fmt.Fprintln(w)
		for _, id := range ids {
			l := stats.Links[id]
			duration := l.LastSeen.Sub(l.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(id), l.Events, duration)
			if l.URL != "" {
				fmt.Fprintf(w, "           URL: %s\n", l.URL)
			}
			if l.DeviceID != "" {
				fmt.Fprintf(w, "           Device: %s\n", l.DeviceID)
			}
			if l.Pings > 0 {
				fmt.Fprintf(w, "           Keep-alive: %d pings, %d pongs\n", l.Pings, l.Pongs)
			}
		}
	}

	if stats.Errors > 0 || stats.LinkFatal > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
		if stats.LinkFatal > 0 {
			fmt.Fprintf(w, "Link-fatal frames: %d\n", stats.LinkFatal)
		}
	}
}
