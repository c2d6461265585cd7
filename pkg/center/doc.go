// Package center ties discovery to device sessions.
//
// A Registry maps receiver manufacturers to session constructors and
// lists the search targets discovery should use. A Center runs a
// discovery engine, creates a session for every discovered device whose
// manufacturer is registered, and closes that session when the device
// goes away or discovery stops.
package center
