package discovery

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startResponder answers every M-SEARCH on a loopback port with one
// search response.
func startResponder(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	reply := []byte("HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"LOCATION: " + testLocation + "\r\n" +
		"ST: " + SearchTargetOCast + "\r\n" +
		"USN: uuid:" + testID + "::" + SearchTargetOCast + "\r\n" +
		"\r\n")

	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if !bytes.HasPrefix(buf[:n], []byte("M-SEARCH")) {
				continue
			}
			// Noise first, then the real answer.
			_, _ = conn.WriteToUDP([]byte("garbage"), from)
			_, _ = conn.WriteToUDP(reply, from)
		}
	}()

	return conn.LocalAddr().String()
}

func TestSSDPTransportSearch(t *testing.T) {
	addr := startResponder(t)
	tr := NewSSDPTransport(SSDPConfig{GroupAddr: addr})

	responses := make(chan SearchResponse, 4)
	require.NoError(t, tr.Open(func(r SearchResponse) { responses <- r }, func(err error) {
		t.Errorf("unexpected transport error: %v", err)
	}))
	defer tr.Close()

	require.NoError(t, tr.Search(SearchTargetOCast, time.Second))

	select {
	case r := <-responses:
		assert.Equal(t, testID, r.ID)
		assert.Equal(t, testLocation, r.Location)
	case <-time.After(2 * time.Second):
		t.Fatal("no search response")
	}
}

func TestSSDPTransportClosed(t *testing.T) {
	tr := NewSSDPTransport(SSDPConfig{})
	assert.ErrorIs(t, tr.Search(SearchTargetOCast, time.Second), ErrTransportClosed)
	assert.NoError(t, tr.Close())

	addr := startResponder(t)
	tr = NewSSDPTransport(SSDPConfig{GroupAddr: addr})
	require.NoError(t, tr.Open(func(SearchResponse) {}, func(err error) {
		t.Errorf("close reported as failure: %v", err)
	}))
	require.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Search(SearchTargetOCast, time.Second), ErrTransportClosed)

	// Give the read loop time to observe the close.
	time.Sleep(20 * time.Millisecond)
}
