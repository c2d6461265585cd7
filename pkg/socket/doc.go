// Package socket defines the duplex text channel a link runs over and
// provides a WebSocket implementation of it.
//
// A Socket reports everything that happens to it through its Handler:
// OnOpen once the channel is usable, OnMessage for each text frame,
// OnPong for keep-alive answers and OnClose exactly once when the
// channel goes away, whoever closed it.
package socket
