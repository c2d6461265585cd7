package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// DefaultMulticastTTL keeps search requests on the local network.
const DefaultMulticastTTL = 2

// SSDPConfig configures an SSDPTransport.
type SSDPConfig struct {
	// Interface names the network interface to search on. Empty lets the
	// system choose.
	Interface string

	TTL int

	// Loopback delivers requests to listeners on this host.
	Loopback bool

	// GroupAddr overrides the destination of search requests.
	GroupAddr string

	Logger *slog.Logger
}

// SSDPTransport searches with SSDP M-SEARCH over UDP multicast.
type SSDPTransport struct {
	config SSDPConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	pc     *ipv4.PacketConn
	group  *net.UDPAddr
	closed bool
}

// NewSSDPTransport creates a closed transport.
func NewSSDPTransport(config SSDPConfig) *SSDPTransport {
	if config.TTL == 0 {
		config.TTL = DefaultMulticastTTL
	}
	if config.GroupAddr == "" {
		config.GroupAddr = SSDPMulticastAddr
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SSDPTransport{config: config, logger: logger}
}

// Open binds an ephemeral UDP port and starts reading responses.
func (t *SSDPTransport) Open(onResponse func(SearchResponse), onError func(error)) error {
	group, err := net.ResolveUDPAddr("udp4", t.config.GroupAddr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", t.config.GroupAddr, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	if group.IP.IsMulticast() {
		if err := pc.SetMulticastTTL(t.config.TTL); err != nil {
			conn.Close()
			return fmt.Errorf("set multicast TTL: %w", err)
		}
		if err := pc.SetMulticastLoopback(t.config.Loopback); err != nil {
			conn.Close()
			return fmt.Errorf("set multicast loopback: %w", err)
		}
		if t.config.Interface != "" {
			ifi, err := net.InterfaceByName(t.config.Interface)
			if err != nil {
				conn.Close()
				return fmt.Errorf("interface %s: %w", t.config.Interface, err)
			}
			if err := pc.SetMulticastInterface(ifi); err != nil {
				conn.Close()
				return fmt.Errorf("set multicast interface: %w", err)
			}
		}
	}

	t.mu.Lock()
	t.conn = conn
	t.pc = pc
	t.group = group
	t.closed = false
	t.mu.Unlock()

	go t.readLoop(pc, onResponse, onError)
	return nil
}

func (t *SSDPTransport) readLoop(pc *ipv4.PacketConn, onResponse func(SearchResponse), onError func(error)) {
	buf := make([]byte, 2048)
	for {
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			if onError != nil {
				onError(err)
			}
			return
		}

		resp, err := ParseSearchResponse(buf[:n])
		if err != nil {
			t.logger.Debug("dropping search response", "from", src, "error", err)
			continue
		}
		onResponse(resp)
	}
}

// Search sends one M-SEARCH for target.
func (t *SSDPTransport) Search(target string, mx time.Duration) error {
	t.mu.Lock()
	pc, group := t.pc, t.group
	closed := t.closed || pc == nil
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	_, err := pc.WriteTo(EncodeSearchRequest(target, mx), nil, group)
	return err
}

// Close stops reading and releases the socket.
func (t *SSDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.conn == nil {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

var _ Transport = (*SSDPTransport)(nil)
