package dial

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptorXML = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:cast-ocast-org:device:castd:1</deviceType>
    <friendlyName>Living Room</friendlyName>
    <manufacturer>Orange SA</manufacturer>
    <modelName>Leticia</modelName>
    <UDN>uuid:b042f955-9ae7-44a8-ba6c-0009743932f7</UDN>
  </device>
</root>`

const runningXML = `<?xml version="1.0" encoding="UTF-8"?>
<service xmlns="urn:dial-multiscreen-org:schemas:dial" xmlns:ocast="urn:cast-ocast-org:service:cast:1" dialVer="2.1">
  <name>Orange-DefaultReceiver-DEV</name>
  <options allowStop="true"/>
  <state>running</state>
  <link rel="run" href="run"/>
  <additionalData>
    <ocast:X_OCAST_App2AppURL>wss://127.0.0.1:4433/ocast</ocast:X_OCAST_App2AppURL>
    <ocast:X_OCAST_Version>1.0</ocast:X_OCAST_Version>
  </additionalData>
</service>`

const stoppedXML = `<?xml version="1.0" encoding="UTF-8"?>
<service xmlns="urn:dial-multiscreen-org:schemas:dial" dialVer="2.1">
  <name>Orange-DefaultReceiver-DEV</name>
  <options allowStop="true"/>
  <state>stopped</state>
</service>`

// fakeReceiver serves a descriptor and one application.
type fakeReceiver struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	startErr int
}

func (f *fakeReceiver) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /dd.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Application-URL", "http://"+r.Host+"/apps")
		w.Write([]byte(descriptorXML))
	})
	mux.HandleFunc("GET /apps/Orange-DefaultReceiver-DEV", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.running {
			w.Write([]byte(runningXML))
		} else {
			w.Write([]byte(stoppedXML))
		}
	})
	mux.HandleFunc("POST /apps/Orange-DefaultReceiver-DEV", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.starts++
		if f.startErr != 0 {
			w.WriteHeader(f.startErr)
			return
		}
		f.running = true
		w.Header().Set("Location", "http://"+r.Host+"/apps/Orange-DefaultReceiver-DEV/run")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("DELETE /apps/Orange-DefaultReceiver-DEV/run", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stops++
		f.running = false
	})
	return mux
}

func newFakeReceiver(t *testing.T) (*fakeReceiver, *httptest.Server) {
	t.Helper()
	f := &fakeReceiver{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return f, srv
}

func TestResolverResolve(t *testing.T) {
	_, srv := newFakeReceiver(t)

	desc, err := NewResolver(DefaultConfig()).Resolve(context.Background(), srv.URL+"/dd.xml")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/dd.xml", desc.Location)
	assert.Equal(t, srv.URL+"/apps", desc.ApplicationURL)
	assert.Equal(t, "Living Room", desc.FriendlyName)
	assert.Equal(t, "Orange SA", desc.Manufacturer)
	assert.Equal(t, "Leticia", desc.ModelName)
	assert.Equal(t, "uuid:b042f955-9ae7-44a8-ba6c-0009743932f7", desc.UDN)
}

func TestResolverRequiresApplicationURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(descriptorXML))
	}))
	defer srv.Close()

	_, err := NewResolver(Config{}).Resolve(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrMissingApplicationURL)
}

func TestResolverRejectsBadDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Application-URL", "http://x/apps")
		w.Write([]byte("<root><device>"))
	}))
	defer srv.Close()

	r := NewResolver(Config{})
	_, err := r.Resolve(context.Background(), srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	_, err = r.Resolve(context.Background(), srv.URL+"/truncated")
	assert.Error(t, err)
}

func TestClientInfo(t *testing.T) {
	f, srv := newFakeReceiver(t)
	c := NewClient(srv.URL+"/apps/", DefaultConfig())
	assert.Equal(t, srv.URL+"/apps", c.BaseURL())

	info, err := c.Info(context.Background(), "Orange-DefaultReceiver-DEV")
	require.NoError(t, err)
	assert.False(t, info.Running())
	assert.Empty(t, info.RunLink)

	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	info, err = c.Info(context.Background(), "Orange-DefaultReceiver-DEV")
	require.NoError(t, err)
	assert.True(t, info.Running())
	assert.True(t, info.AllowStop)
	assert.Equal(t, "Orange-DefaultReceiver-DEV", info.Name)
	assert.Equal(t, "run", info.RunLink)
	assert.Equal(t, "wss://127.0.0.1:4433/ocast", info.App2AppURL)
	assert.Equal(t, "1.0", info.Version)

	_, err = c.Info(context.Background(), "Unknown")
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestClientStartStop(t *testing.T) {
	f, srv := newFakeReceiver(t)
	c := NewClient(srv.URL+"/apps", Config{})
	ctx := context.Background()

	err := c.Stop(ctx, "Orange-DefaultReceiver-DEV")
	assert.ErrorIs(t, err, ErrStopFailed)
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, c.Start(ctx, "Orange-DefaultReceiver-DEV"))
	info, err := c.Info(ctx, "Orange-DefaultReceiver-DEV")
	require.NoError(t, err)
	assert.True(t, info.Running())

	require.NoError(t, c.Stop(ctx, "Orange-DefaultReceiver-DEV"))
	f.mu.Lock()
	assert.Equal(t, 1, f.starts)
	assert.Equal(t, 1, f.stops)
	assert.False(t, f.running)
	f.mu.Unlock()
}

func TestClientStartFailure(t *testing.T) {
	f, srv := newFakeReceiver(t)
	f.startErr = http.StatusServiceUnavailable
	c := NewClient(srv.URL+"/apps", Config{})

	err := c.Start(context.Background(), "Orange-DefaultReceiver-DEV")
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.Contains(t, err.Error(), "503")

	err = c.Start(context.Background(), "Unknown")
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestParseAppInfoHidden(t *testing.T) {
	info, err := parseAppInfo([]byte(`<service><name>x</name><state>hidden</state></service>`))
	require.NoError(t, err)
	assert.Equal(t, AppHidden, info.State)
	assert.False(t, info.Running())
	assert.False(t, (*AppInfo)(nil).Running())
}
