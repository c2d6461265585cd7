// Package wire defines the JSON envelope exchanged with a cast receiver.
//
// Every frame on a link is a UTF-8 JSON text frame:
//
//	{ "dst": "<destination>", "src": "<source>",
//	  "type": "command" | "reply" | "event",
//	  "id": <sequence id>, "status": "<optional status>",
//	  "message": { "service": "<service id>",
//	               "data": { "name": "<name>", "params": {...}, "options": {...} } } }
//
// # Domains
//
// A domain is a logical channel namespace multiplexed over one link.
// Commands for the receiver web application and its media player travel in
// the "browser" domain; device settings travel in the "settings" domain.
// Outgoing commands carry the domain as destination and the session
// identity as source. Inbound events carry their domain as source.
//
// # Sequence IDs
//
// Commands carry a positive sequence id that the matching reply echoes.
// A frame whose id is -1 is link-fatal: its status carries the error text
// and it applies to every request outstanding on the link.
//
// # Errors
//
// Errors produced by the SDK are classified with a Kind (network,
// protocol, state, application, remote). Use KindOf or errors.As with
// *Error to inspect the class, and errors.Is with the sentinels in this
// package to inspect the cause.
package wire
