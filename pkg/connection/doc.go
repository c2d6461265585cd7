// Package connection schedules reconnection attempts for sessions whose
// link failed.
//
// Delays grow exponentially from one second to a one minute ceiling, each
// with up to 25% random jitter so that several controllers losing the same
// receiver do not reconnect in lockstep:
//
//	delay = base + random(0, base * 0.25)
//
// A successful attempt resets the sequence.
package connection
