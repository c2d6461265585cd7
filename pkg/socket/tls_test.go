package socket

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientTLSConfig(t *testing.T) {
	_, err := NewClientTLSConfig(nil)
	assert.Error(t, err)

	cfg, err := NewClientTLSConfig(&TLSConfig{ServerName: "tv.local", InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "tv.local", cfg.ServerName)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Empty(t, cfg.Certificates)

	_, err = NewClientTLSConfig(&TLSConfig{Certificate: &tls.Certificate{}})
	assert.Error(t, err)
}

func TestLoadCertPoolRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0600))

	_, err := LoadCertPool(path)
	assert.Error(t, err)

	_, err = LoadCertPool(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}
