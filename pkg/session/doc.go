// Package session drives the connection to one cast receiver.
//
// A Session multiplexes three modules over WebSocket links:
//
//   - the application module, bound to the web application's app-to-app
//     endpoint and carrying the browser domain,
//   - the public settings module, carrying the settings domain,
//   - the private settings module, only connected when the controller is
//     allowed to read private settings.
//
// Modules whose endpoint URL is the same share one transport.Link. A link
// is closed when the last module using it disconnects.
//
// Before the first browser-domain command, the session makes sure the web
// application is running: it asks the lifecycle service, starts the
// application if needed, and waits for the application's connectedStatus
// event before sending.
//
// Every operation is asynchronous and reports through a completion that
// is called exactly once. ConnectContext and SendContext wrap them for
// callers that prefer to block.
package session
