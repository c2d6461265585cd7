// Package dial talks to the receiver's application lifecycle service.
//
// A Resolver fetches the UPnP device descriptor announced during discovery;
// the descriptor response carries the Application-URL header that roots
// every application resource. A Client then queries, starts and stops a
// named application below that URL:
//
//	GET    <base>/<app>            application info (XML)
//	POST   <base>/<app>            start
//	DELETE <base>/<app>/<runLink>  stop
package dial
