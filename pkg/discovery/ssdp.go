package discovery

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SSDP constants.
const (
	SSDPMulticastAddr = "239.255.255.250:1900"
	ssdpDiscover      = `"ssdp:discover"`
)

// EncodeSearchRequest builds an M-SEARCH datagram for target. mx is
// rounded down to whole seconds, with a minimum of one.
func EncodeSearchRequest(target string, mx time.Duration) []byte {
	secs := int(mx / time.Second)
	if secs < 1 {
		secs = 1
	}
	var b bytes.Buffer
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	b.WriteString("HOST: " + SSDPMulticastAddr + "\r\n")
	b.WriteString("MAN: " + ssdpDiscover + "\r\n")
	b.WriteString("MX: " + strconv.Itoa(secs) + "\r\n")
	b.WriteString("ST: " + target + "\r\n")
	b.WriteString("\r\n")
	return b.Bytes()
}

// ParseSearchResponse parses an HTTP-over-UDP search response.
func ParseSearchResponse(data []byte) (SearchResponse, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchResponse{}, fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode)
	}

	sr := SearchResponse{
		SearchTarget: resp.Header.Get("ST"),
		USN:          resp.Header.Get("USN"),
		Location:     resp.Header.Get("LOCATION"),
		Server:       resp.Header.Get("SERVER"),
		MaxAge:       parseMaxAge(resp.Header.Get("CACHE-CONTROL")),
	}
	if sr.SearchTarget == "" || sr.USN == "" || sr.Location == "" {
		return SearchResponse{}, fmt.Errorf("%w: missing ST, USN or LOCATION", ErrMalformedResponse)
	}
	sr.ID = DeviceIDFromUSN(sr.USN)
	if sr.ID == "" {
		return SearchResponse{}, fmt.Errorf("%w: bad USN %q", ErrMalformedResponse, sr.USN)
	}
	return sr, nil
}

// DeviceIDFromUSN extracts the device id from a unique service name such as
// "uuid:b042f955-9ae7-44a8-ba6c-0009743932f7::urn:cast-ocast-org:service:cast:1".
// UUIDs are returned in canonical lower-case form.
func DeviceIDFromUSN(usn string) string {
	id := strings.TrimSpace(usn)
	if head, _, found := strings.Cut(id, "::"); found {
		id = head
	}
	if len(id) >= 5 && strings.EqualFold(id[:5], "uuid:") {
		id = id[5:]
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

func parseMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "max-age") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}
