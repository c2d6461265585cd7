package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// DNS-SD defaults.
const (
	ServiceTypeOCast = "_ocast._tcp"
	MDNSDomain       = "local"

	// TXT record keys published by receivers.
	TXTKeyID       = "id"
	TXTKeyLocation = "location"
)

// MDNSConfig configures an MDNSTransport.
type MDNSConfig struct {
	// ServiceTypes maps DNS-SD service types to the search target they
	// stand for.
	ServiceTypes map[string]string

	Domain    string
	Interface string

	Logger *slog.Logger
}

// DefaultMDNSConfig browses for cast receivers.
func DefaultMDNSConfig() MDNSConfig {
	return MDNSConfig{
		ServiceTypes: map[string]string{ServiceTypeOCast: SearchTargetOCast},
		Domain:       MDNSDomain,
	}
}

// MDNSTransport reports DNS-SD browse results as search responses. Each
// Search browses for MX; a browse already in flight is not restarted.
type MDNSTransport struct {
	config MDNSConfig
	logger *slog.Logger

	mu         sync.Mutex
	onResponse func(SearchResponse)
	ctx        context.Context
	cancel     context.CancelFunc
	browsing   map[string]bool
}

// NewMDNSTransport creates a closed transport.
func NewMDNSTransport(config MDNSConfig) *MDNSTransport {
	if len(config.ServiceTypes) == 0 {
		config.ServiceTypes = DefaultMDNSConfig().ServiceTypes
	}
	if config.Domain == "" {
		config.Domain = MDNSDomain
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MDNSTransport{config: config, logger: logger, browsing: make(map[string]bool)}
}

// Open records the callbacks. Browse failures are per search and never
// fatal, so onError is not used.
func (t *MDNSTransport) Open(onResponse func(SearchResponse), _ func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResponse = onResponse
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return nil
}

// Search browses every service type mapped to target.
func (t *MDNSTransport) Search(target string, mx time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx == nil {
		return ErrTransportClosed
	}
	for svc, st := range t.config.ServiceTypes {
		if !strings.EqualFold(st, target) || t.browsing[svc] {
			continue
		}
		t.browsing[svc] = true
		ctx, cancel := context.WithTimeout(t.ctx, mx)
		go t.browse(ctx, cancel, svc, st)
	}
	return nil
}

func (t *MDNSTransport) browse(ctx context.Context, cancel context.CancelFunc, svc, target string) {
	defer func() {
		cancel()
		t.mu.Lock()
		delete(t.browsing, svc)
		t.mu.Unlock()
	}()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		if err := zeroconf.Browse(ctx, svc, t.config.Domain, entries, removed, t.clientOptions()...); err != nil {
			t.logger.Debug("mdns browse failed", "service", svc, "error", err)
			cancel()
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			resp, ok := entryToResponse(entry, target)
			if !ok {
				continue
			}
			t.mu.Lock()
			onResponse := t.onResponse
			t.mu.Unlock()
			if onResponse != nil {
				onResponse(resp)
			}
		case _, ok := <-removed:
			// Removals are left to the engine's sweep.
			if !ok {
				removed = nil
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *MDNSTransport) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if t.config.Interface != "" {
		if iface, err := net.InterfaceByName(t.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// Close cancels every browse.
func (t *MDNSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.ctx, t.cancel = nil, nil
	t.onResponse = nil
	return nil
}

// entryToResponse converts a browse result. The device id comes from the
// "id" TXT key, else the instance name; the descriptor location from the
// "location" key, else the first address and the advertised port.
func entryToResponse(entry *zeroconf.ServiceEntry, target string) (SearchResponse, bool) {
	if entry == nil {
		return SearchResponse{}, false
	}
	txt := parseTXT(entry.Text)

	id := txt[TXTKeyID]
	if id == "" {
		id = entry.Instance
	}
	id = DeviceIDFromUSN(id)
	if id == "" {
		return SearchResponse{}, false
	}

	location := txt[TXTKeyLocation]
	if location == "" {
		var host string
		switch {
		case len(entry.AddrIPv4) > 0:
			host = entry.AddrIPv4[0].String()
		case len(entry.AddrIPv6) > 0:
			host = entry.AddrIPv6[0].String()
		default:
			return SearchResponse{}, false
		}
		location = fmt.Sprintf("http://%s/dd.xml", net.JoinHostPort(host, strconv.Itoa(entry.Port)))
	}

	return SearchResponse{
		SearchTarget: target,
		USN:          "uuid:" + id + "::" + target,
		Location:     location,
		ID:           id,
	}, true
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		out[strings.ToLower(k)] = v
	}
	return out
}

var _ Transport = (*MDNSTransport)(nil)
