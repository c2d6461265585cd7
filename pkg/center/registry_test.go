package center

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orange-OpenSource/ocast-go/pkg/dial"
	"github.com/Orange-OpenSource/ocast-go/pkg/discovery"
	"github.com/Orange-OpenSource/ocast-go/pkg/session"
	"github.com/Orange-OpenSource/ocast-go/pkg/socket/sockettest"
)

const testSearchTarget = "urn:acme-com:service:cast:1"

func nopFactory(discovery.Device) (*session.Session, error) { return nil, nil }

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Orange SA", "", nopFactory))
	require.NoError(t, r.Register("Acme", testSearchTarget, nopFactory))

	f, ok := r.Lookup("orange sa")
	assert.True(t, ok)
	assert.NotNil(t, f)

	_, ok = r.Lookup(" ACME ")
	assert.True(t, ok)

	_, ok = r.Lookup("Globex")
	assert.False(t, ok)

	assert.Equal(t, []string{"Orange SA", "Acme"}, r.Manufacturers())
}

func TestRegistryRegisterErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Orange SA", "", nopFactory))

	tests := []struct {
		name         string
		manufacturer string
		factory      Factory
		want         error
	}{
		{"empty manufacturer", "  ", nopFactory, ErrEmptyManufacturer},
		{"nil factory", "Acme", nil, ErrNilFactory},
		{"duplicate", "ORANGE SA", nopFactory, ErrAlreadyRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.Register(tt.manufacturer, "", tt.factory), tt.want)
		})
	}
}

func TestRegistrySearchTargets(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.SearchTargets())

	require.NoError(t, r.Register("Orange SA", "", nopFactory))
	require.NoError(t, r.Register("Acme", testSearchTarget, nopFactory))
	require.NoError(t, r.Register("Globex", discovery.SearchTargetOCast, nopFactory))

	assert.Equal(t, []string{discovery.SearchTargetOCast, testSearchTarget}, r.SearchTargets())
}

func TestSessionFactory(t *testing.T) {
	sockets := &sockettest.Factory{}
	f := SessionFactory(session.Config{
		ApplicationName: "Orange-DefaultReceiver-DEV",
		SocketFactory:   sockets.New,
	}, dial.DefaultConfig())

	s, err := f(discovery.Device{ID: "dev-1", Host: "192.168.1.20"})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "dev-1", s.Device().ID)
	assert.Equal(t, "Orange-DefaultReceiver-DEV", s.ApplicationName())

	// No base URL, no lifecycle service.
	err = s.StartApplicationContext(context.Background())
	assert.ErrorIs(t, err, session.ErrNoLifecycle)

	_, err = f(discovery.Device{ID: "dev-2"})
	assert.ErrorIs(t, err, session.ErrNoEndpoint)
}

func TestSessionFactoryWithLifecycle(t *testing.T) {
	f := SessionFactory(session.Config{SocketFactory: (&sockettest.Factory{}).New}, dial.DefaultConfig())

	s, err := f(discovery.Device{ID: "dev-1", Host: "192.168.1.20", BaseURL: "http://192.168.1.20:8008/apps"})
	require.NoError(t, err)
	defer s.Close()

	// No application name: nothing to start, the lifecycle is not contacted.
	assert.NoError(t, s.StartApplicationContext(context.Background()))
}
