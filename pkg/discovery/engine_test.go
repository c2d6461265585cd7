package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Orange-OpenSource/ocast-go/pkg/dial"
)

const (
	testID       = "b042f955-9ae7-44a8-ba6c-0009743932f7"
	testLocation = "http://192.168.1.20:56790/dd.xml"
)

// fakeTransport answers every search with the responses in reply.
type fakeTransport struct {
	mu         sync.Mutex
	openErr    error
	reply      []SearchResponse
	searches   []string
	closes     int
	onResponse func(SearchResponse)
	onError    func(error)
}

func (f *fakeTransport) Open(onResponse func(SearchResponse), onError func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.onResponse = onResponse
	f.onError = onError
	return nil
}

func (f *fakeTransport) Search(target string, _ time.Duration) error {
	f.mu.Lock()
	f.searches = append(f.searches, target)
	reply := append([]SearchResponse(nil), f.reply...)
	onResponse := f.onResponse
	f.mu.Unlock()

	for _, r := range reply {
		onResponse(r)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) setReply(r ...SearchResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = r
}

func (f *fakeTransport) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()
	onError(err)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, location string) (*dial.Descriptor, error) {
	args := m.Called(ctx, location)
	desc, _ := args.Get(0).(*dial.Descriptor)
	return desc, args.Error(1)
}

type recordingDelegate struct {
	mu      sync.Mutex
	events  []string
	added   []Device
	removed []Device
	stopErr []error
}

func (d *recordingDelegate) DevicesAdded(devices []Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, "added")
	d.added = append(d.added, devices...)
}

func (d *recordingDelegate) DevicesRemoved(devices []Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, "removed")
	d.removed = append(d.removed, devices...)
}

func (d *recordingDelegate) DiscoveryStopped(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, "stopped")
	d.stopErr = append(d.stopErr, err)
}

func (d *recordingDelegate) snapshot() (events []string, added, removed []Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...),
		append([]Device(nil), d.added...),
		append([]Device(nil), d.removed...)
}

func (d *recordingDelegate) addedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.added)
}

func testResponse() SearchResponse {
	return SearchResponse{
		SearchTarget: SearchTargetOCast,
		USN:          "uuid:" + testID + "::" + SearchTargetOCast,
		Location:     testLocation,
		ID:           testID,
	}
}

func testDescriptor() *dial.Descriptor {
	return &dial.Descriptor{
		Location:       testLocation,
		ApplicationURL: "http://192.168.1.20:8008/apps",
		FriendlyName:   "Living Room",
		Manufacturer:   "Orange SA",
		ModelName:      "Stick",
		UDN:            "uuid:" + testID,
	}
}

func testConfig() Config {
	return Config{
		SearchTargets:   []string{SearchTargetOCast},
		MaxResponseWait: 50 * time.Millisecond,
		RemovalMargin:   20 * time.Millisecond,
	}
}

type engineFixture struct {
	engine    *Engine
	transport *fakeTransport
	resolver  *mockResolver
	delegate  *recordingDelegate
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		transport: &fakeTransport{},
		resolver:  &mockResolver{},
		delegate:  &recordingDelegate{},
	}
	f.engine = NewEngine(testConfig(), f.transport, f.resolver, f.delegate)
	t.Cleanup(func() {
		f.engine.Stop()
		f.engine.Wait()
	})
	return f
}

func (f *engineFixture) waitAdded(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.delegate.addedCount() >= n },
		time.Second, 5*time.Millisecond)
}

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine(Config{Interval: time.Second}, &fakeTransport{}, nil, nil)
	cfg := e.Config()

	assert.Equal(t, []string{SearchTargetOCast}, cfg.SearchTargets)
	assert.Equal(t, MinInterval, cfg.Interval)
	assert.Equal(t, DefaultMaxResponseWait, cfg.MaxResponseWait)
	assert.Equal(t, DefaultRemovalMargin, cfg.RemovalMargin)
	assert.Equal(t, DefaultResolveTimeout, cfg.ResolveTimeout)

	e = NewEngine(Config{Interval: 6 * time.Second, MaxResponseWait: 10 * time.Second}, &fakeTransport{}, nil, nil)
	assert.Equal(t, 11*time.Second, e.Config().Interval)
}

func TestEngineSearchesEachTargetTwice(t *testing.T) {
	f := newEngineFixture(t)

	require.NoError(t, f.engine.Resume())
	assert.True(t, f.engine.Running())
	assert.Equal(t, 2, f.transport.searchCount())
}

func TestEngineAddsResolvedDeviceOnce(t *testing.T) {
	f := newEngineFixture(t)
	f.transport.setReply(testResponse())
	f.resolver.On("Resolve", mock.Anything, testLocation).
		After(20*time.Millisecond).Return(testDescriptor(), nil).Once()

	require.NoError(t, f.engine.Resume())
	f.waitAdded(t, 1)
	f.engine.Wait()

	_, added, _ := f.delegate.snapshot()
	require.Len(t, added, 1)
	assert.Equal(t, testID, added[0].ID)
	assert.Equal(t, "Living Room", added[0].FriendlyName)
	assert.Equal(t, "192.168.1.20", added[0].Host)
	assert.Equal(t, "http://192.168.1.20:8008/apps", added[0].BaseURL)

	f.resolver.AssertNumberOfCalls(t, "Resolve", 1)
	assert.Len(t, f.engine.Devices(), 1)
}

func TestEngineKeepsDeviceThatAnswered(t *testing.T) {
	f := newEngineFixture(t)
	f.transport.setReply(testResponse())
	f.resolver.On("Resolve", mock.Anything, testLocation).Return(testDescriptor(), nil)

	require.NoError(t, f.engine.Resume())
	f.waitAdded(t, 1)

	// Past the first sweep.
	time.Sleep(150 * time.Millisecond)
	f.engine.Wait()

	_, _, removed := f.delegate.snapshot()
	assert.Empty(t, removed)
	assert.Len(t, f.engine.Devices(), 1)
}

func TestEngineSweepRemovesSilentDevice(t *testing.T) {
	f := newEngineFixture(t)
	f.transport.setReply(testResponse())
	f.resolver.On("Resolve", mock.Anything, testLocation).Return(testDescriptor(), nil)

	require.NoError(t, f.engine.Resume())
	f.waitAdded(t, 1)

	f.engine.mu.Lock()
	gen := f.engine.gen
	f.engine.mu.Unlock()

	// A later cycle the device did not answer.
	f.engine.sweep(gen, time.Now().Add(time.Second))
	f.engine.Wait()

	events, _, removed := f.delegate.snapshot()
	assert.Equal(t, []string{"added", "removed"}, events)
	require.Len(t, removed, 1)
	assert.Equal(t, testID, removed[0].ID)
	assert.Empty(t, f.engine.Devices())
}

func TestEngineIgnoresOtherTargets(t *testing.T) {
	f := newEngineFixture(t)
	other := testResponse()
	other.SearchTarget = "urn:dial-multiscreen-org:service:dial:1"
	f.transport.setReply(other)

	require.NoError(t, f.engine.Resume())
	time.Sleep(20 * time.Millisecond)

	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	assert.Empty(t, f.engine.Devices())
}

func TestEngineDropsUnresolvableDevice(t *testing.T) {
	f := newEngineFixture(t)
	f.transport.setReply(testResponse())
	var called atomic.Bool
	f.resolver.On("Resolve", mock.Anything, testLocation).
		Run(func(mock.Arguments) { called.Store(true) }).
		Return(nil, errors.New("connection refused"))

	require.NoError(t, f.engine.Resume())
	require.Eventually(t, called.Load, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	f.engine.Wait()

	events, _, _ := f.delegate.snapshot()
	assert.Empty(t, events)
	assert.Empty(t, f.engine.Devices())
}

func TestEngineWithoutResolver(t *testing.T) {
	transport := &fakeTransport{}
	transport.setReply(testResponse())
	delegate := &recordingDelegate{}
	e := NewEngine(testConfig(), transport, nil, delegate)
	defer e.Stop()

	require.NoError(t, e.Resume())
	require.Eventually(t, func() bool { return delegate.addedCount() == 1 }, time.Second, 5*time.Millisecond)

	devices := e.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, testLocation, devices[0].Location)
	assert.Empty(t, devices[0].FriendlyName)
}

func TestEnginePauseKeepsTable(t *testing.T) {
	f := newEngineFixture(t)
	f.transport.setReply(testResponse())
	f.resolver.On("Resolve", mock.Anything, testLocation).Return(testDescriptor(), nil)

	require.NoError(t, f.engine.Resume())
	f.waitAdded(t, 1)

	f.engine.Pause()
	assert.False(t, f.engine.Running())
	searches := f.transport.searchCount()

	time.Sleep(150 * time.Millisecond)
	f.engine.Wait()

	events, _, _ := f.delegate.snapshot()
	assert.Equal(t, []string{"added"}, events)
	assert.Len(t, f.engine.Devices(), 1)
	assert.Equal(t, searches, f.transport.searchCount())
	assert.Equal(t, 0, f.transport.closeCount())

	require.NoError(t, f.engine.Resume())
	assert.Equal(t, searches+2, f.transport.searchCount())
}

func TestEngineStopReportsRemovedThenStopped(t *testing.T) {
	f := newEngineFixture(t)
	f.transport.setReply(testResponse())
	f.resolver.On("Resolve", mock.Anything, testLocation).Return(testDescriptor(), nil)

	require.NoError(t, f.engine.Resume())
	f.waitAdded(t, 1)

	f.engine.Stop()
	f.engine.Wait()

	events, _, removed := f.delegate.snapshot()
	assert.Equal(t, []string{"added", "removed", "stopped"}, events)
	require.Len(t, removed, 1)
	assert.Equal(t, testID, removed[0].ID)
	assert.Nil(t, f.delegate.stopErr[0])
	assert.Empty(t, f.engine.Devices())
	assert.Equal(t, 1, f.transport.closeCount())

	// A second Stop reports nothing.
	f.engine.Stop()
	f.engine.Wait()
	events, _, _ = f.delegate.snapshot()
	assert.Len(t, events, 3)
}

func TestEngineResumeOpenFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.transport.openErr = errors.New("no multicast route")

	err := f.engine.Resume()
	require.Error(t, err)
	assert.False(t, f.engine.Running())
	assert.Equal(t, 0, f.transport.searchCount())

	f.engine.Stop()
	f.engine.Wait()
	events, _, _ := f.delegate.snapshot()
	assert.Empty(t, events)
}

func TestEngineTransportFailureStopsDiscovery(t *testing.T) {
	f := newEngineFixture(t)
	f.transport.setReply(testResponse())
	f.resolver.On("Resolve", mock.Anything, testLocation).Return(testDescriptor(), nil)

	require.NoError(t, f.engine.Resume())
	f.waitAdded(t, 1)

	cause := errors.New("network down")
	f.transport.fail(cause)
	f.engine.Wait()

	events, _, _ := f.delegate.snapshot()
	assert.Equal(t, []string{"added", "removed", "stopped"}, events)
	assert.ErrorIs(t, f.delegate.stopErr[0], cause)
	assert.False(t, f.engine.Running())
}

func TestEngineRestartAfterStop(t *testing.T) {
	f := newEngineFixture(t)

	require.NoError(t, f.engine.Resume())
	f.engine.Stop()
	require.NoError(t, f.engine.Resume())
	assert.True(t, f.engine.Running())
	assert.Equal(t, 4, f.transport.searchCount())
}
