// Package version parses and compares the protocol versions advertised by
// receiver applications.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version implemented by this library.
const Current = "1.0"

// ErrIncompatible is returned by Check for a different major version.
var ErrIncompatible = errors.New("incompatible protocol version")

// Version is a parsed "major.minor" protocol version. A trailing patch
// component is accepted and ignored.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses "major.minor" or "major.minor.patch".
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}
	if len(parts) == 3 {
		if _, err := strconv.ParseUint(parts[2], 10, 16); err != nil {
			return Version{}, fmt.Errorf("invalid version %q: bad patch component", s)
		}
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether both versions share a major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Check verifies that a version advertised by a receiver can be spoken
// with. An empty string means the receiver did not say, and passes.
func Check(advertised string) error {
	if strings.TrimSpace(advertised) == "" {
		return nil
	}
	v, err := Parse(advertised)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatible, err)
	}
	if !MustParse(Current).Compatible(v) {
		return fmt.Errorf("%w: receiver speaks %s, want %s", ErrIncompatible, v, Current)
	}
	return nil
}
