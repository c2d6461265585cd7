// Package log provides protocol capture for cast links.
//
// It is separate from operational logging (slog): capture produces a
// machine-readable trace of every frame, keep-alive exchange and state
// transition, suitable for offline inspection with ocast-log.
//
// # Basic Usage
//
//	// Development: mirror capture events into slog at debug level
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Field traces: append to a binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/tmp/living-room.olog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(slogAdapter, fileLogger)
//
// # Event Types
//
// Events are captured at three layers:
//   - Socket: raw text frames and control frames (FrameEvent, ControlMsgEvent)
//   - Link: decoded envelopes (MessageEvent)
//   - Session: module and application state (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with integer keys,
// conventionally named *.olog.
package log
