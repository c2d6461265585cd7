package socket

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig describes how a client authenticates a receiver and,
// optionally, itself.
type TLSConfig struct {
	// RootCAs trusts receiver certificates. Nil uses the system pool.
	RootCAs *x509.CertPool

	// Certificate is an optional client certificate.
	Certificate *tls.Certificate

	// ServerName overrides the name checked against the receiver certificate.
	ServerName string

	// InsecureSkipVerify accepts any receiver certificate. Receivers
	// commonly present self-signed certificates on the LAN.
	InsecureSkipVerify bool
}

// NewClientTLSConfig builds a *tls.Config for wss:// links.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            cfg.RootCAs,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.Certificate != nil {
		if len(cfg.Certificate.Certificate) == 0 {
			return nil, fmt.Errorf("client certificate is empty")
		}
		tlsConfig.Certificates = []tls.Certificate{*cfg.Certificate}
	}
	return tlsConfig, nil
}

// LoadCertPool reads PEM certificates from path into a new pool.
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
