package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"haruup-service/internal/util"
)

var ErrNoCertificate = errors.New("no certificate available")

type TLSManager struct {
	config   *TLSConfig
	autoCert *autocert.Manager

	fileOnce sync.Once
	fileCert *tls.Certificate
	fileErr  error

	devCert *devCertSource
}

type TLSConfig struct {
	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
	Environment string
}

func NewTLSManager(config *TLSConfig) *TLSManager {
	manager := &TLSManager{config: config}

	if config.AutoCert && config.EnableTLS {
		manager.setupAutoCert()
	}
	if config.Environment != "production" {
		manager.devCert = newDevCertSource([]string{config.Domain, "localhost", "127.0.0.1", "::1"})
	}

	return manager
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.config.AutoCertDir, 0700); err != nil {
		util.Warn("Could not create autocert directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.config.Domain),
		Cache:      autocert.DirCache(m.config.AutoCertDir),
		Email:      m.config.Email,
	}

	util.Info("AutoCert configured",
		zap.String("domain", m.config.Domain),
		zap.String("cache_dir", m.config.AutoCertDir))
}

// GetCertificate tries ACME, then the configured key pair, then (outside production) a
// self-signed certificate.
func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		util.Debug("AutoCert lookup failed, falling back", zap.Error(err))
	}

	if cert, err := m.loadFileCert(); err == nil {
		return cert, nil
	}

	if m.devCert != nil {
		return m.devCert.get()
	}
	return nil, fmt.Errorf("%w for %q", ErrNoCertificate, hello.ServerName)
}

func (m *TLSManager) loadFileCert() (*tls.Certificate, error) {
	if m.config.CertFile == "" || m.config.KeyFile == "" {
		return nil, ErrNoCertificate
	}
	m.fileOnce.Do(func() {
		cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
		if err != nil {
			m.fileErr = fmt.Errorf("failed to load key pair: %w", err)
			util.Error("Failed to load TLS key pair", zap.Error(err))
			return
		}
		m.fileCert = &cert
	})
	return m.fileCert, m.fileErr
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}

// GetAutocertManager is nil unless ACME is configured; its HTTPHandler serves the http-01 challenge.
func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
