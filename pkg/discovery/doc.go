// Package discovery finds cast receivers on the local network and keeps a
// live table of them.
//
// # Cycles
//
// While running, the Engine starts a discovery cycle every Interval
// (30 seconds by default, never less than 5). A cycle sends each search
// target twice, since datagrams get lost, then sweeps the table
// MaxResponseWait plus one second later: any device that did not answer
// during the cycle is removed.
//
// # Devices
//
// The first response carrying an unseen device id triggers a descriptor
// fetch through the DescriptorResolver. The device is added and reported
// once the descriptor is known, unless discovery was paused or stopped in
// the meantime. Every response refreshes the device's last-seen time.
//
// # Transports
//
// SSDPTransport sends M-SEARCH requests to 239.255.255.250:1900.
// MDNSTransport browses DNS-SD service types instead and reports what it
// finds as search responses, so both drive the same Engine.
package discovery
