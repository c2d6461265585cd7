// Package transport implements the link: request/reply correlation and
// event delivery over one socket per endpoint URL.
//
// # Frames
//
// Every frame is a JSON envelope (see package wire). Outgoing commands get
// a sequence id from the link; replies are matched to the pending command
// by id and events are handed to the link delegate keyed by their source
// domain. A frame with id -1 is link-fatal: every pending command fails
// with its status text and the socket stays open.
//
// # Keep-Alive
//
// While connected the link pings the receiver every 5 seconds. A pong must
// arrive before the next tick; after 2 consecutive misses the link closes
// the socket and reports a failure to its delegate.
//
// # States
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTING -> DISCONNECTED
//
// Connect and Disconnect completions are coalesced: callers arriving while
// a transition is in flight are resolved together when it ends.
package transport
