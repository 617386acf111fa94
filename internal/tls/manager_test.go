package tls

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetCertificate_DevFallback(t *testing.T) {
	m := NewTLSManager(&TLSConfig{EnableTLS: true, Domain: "haruup.local", Environment: "development"})

	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "haruup.local"})
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	require.Contains(t, cert.Leaf.DNSNames, "haruup.local")
	require.Contains(t, cert.Leaf.DNSNames, "localhost")
	require.Len(t, cert.Leaf.IPAddresses, 2)

	again, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	require.Same(t, cert, again)
}

func TestGetCertificate_ProductionWithoutCertificate(t *testing.T) {
	m := NewTLSManager(&TLSConfig{EnableTLS: true, Domain: "api.haruup.com", Environment: "production",
		CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"})

	_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "api.haruup.com"})
	require.ErrorIs(t, err, ErrNoCertificate)
	require.Nil(t, m.GetAutocertManager())
}

func TestGetTLSConfig(t *testing.T) {
	cfg := NewTLSManager(&TLSConfig{Environment: "development"}).GetTLSConfig()
	require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotNil(t, cfg.GetCertificate)
}
