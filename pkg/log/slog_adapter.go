package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors capture events into an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as a single "protocol" record.
func (a *SlogAdapter) Log(event Event) {
	if !a.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Domain != "" {
		attrs = append(attrs, slog.String("domain", event.Domain))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.String("type", m.Type),
			slog.Int("id", m.ID),
			slog.String("service", m.Service),
			slog.String("name", m.Name),
		)
		if m.Status != "" {
			attrs = append(attrs, slog.String("status", m.Status))
		}
		if m.RoundTrip != nil {
			attrs = append(attrs, slog.Duration("rtt", *m.RoundTrip))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
		if event.ControlMsg.Missed > 0 {
			attrs = append(attrs, slog.Int("missed", event.ControlMsg.Missed))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Kind != "" {
			attrs = append(attrs, slog.String("error_kind", event.Error.Kind))
		}
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
