package discovery

import (
	"errors"
	"net/url"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/dial"
)

// SearchTargetOCast is the search target announced by cast receivers.
const SearchTargetOCast = "urn:cast-ocast-org:service:cast:1"

// Timing defaults.
const (
	DefaultInterval        = 30 * time.Second
	MinInterval            = 5 * time.Second
	DefaultMaxResponseWait = 3 * time.Second

	// DefaultRemovalMargin is added to MaxResponseWait before a sweep to
	// cover the network round trip.
	DefaultRemovalMargin = time.Second

	DefaultResolveTimeout = 5 * time.Second
)

// Discovery errors.
var (
	ErrMalformedResponse = errors.New("discovery: malformed search response")
	ErrNoSearchTargets   = errors.New("discovery: no search targets configured")
	ErrTransportClosed   = errors.New("discovery: transport closed")
)

// SearchResponse is one answer to a search request.
type SearchResponse struct {
	SearchTarget string
	USN          string
	Location     string
	Server       string

	// MaxAge is the CACHE-CONTROL max-age, zero when absent.
	MaxAge time.Duration

	// ID is the device id extracted from USN.
	ID string
}

// Device is a receiver in the discovery table.
type Device struct {
	ID           string
	SearchTarget string

	// Location is the descriptor URL.
	Location string

	// Host is the host part of Location.
	Host string

	FriendlyName string
	Manufacturer string
	ModelName    string

	// BaseURL is the Application-URL of the lifecycle service.
	BaseURL string

	LastSeen time.Time
}

func newDevice(resp SearchResponse, desc *dial.Descriptor, seen time.Time) *Device {
	d := &Device{
		ID:           resp.ID,
		SearchTarget: resp.SearchTarget,
		Location:     resp.Location,
		LastSeen:     seen,
	}
	if u, err := url.Parse(resp.Location); err == nil {
		d.Host = u.Hostname()
	}
	if desc != nil {
		d.FriendlyName = desc.FriendlyName
		d.Manufacturer = desc.Manufacturer
		d.ModelName = desc.ModelName
		d.BaseURL = desc.ApplicationURL
	}
	return d
}
