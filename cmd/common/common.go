// Package common provides shared utilities for the coordination CLI
// commands.
//
// This package contains the pieces used by both standalone binaries
// (fl-server, fl-client) to reduce code duplication:
//
//   - YAML configuration types with the documented defaults
//   - TLS material loading for mutual-TLS deployments
//   - Structured logger construction
package common

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
)

// SetupLogger builds the process logger. JSON output is meant for
// production deployments, text for interactive use.
func SetupLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// TLSConfig points at the PEM files for one side of a mutual-TLS
// connection.
type TLSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Certificate string `yaml:"certificate"`
	PrivateKey  string `yaml:"private_key"`
	RootCA      string `yaml:"root_ca"`
}

// ServerTLSConfig builds the coordinator's TLS configuration: it
// presents the configured certificate and accepts only clients whose
// certificates chain to the root CA. Returns nil when TLS is disabled.
func (c TLSConfig) ServerTLSConfig() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.Certificate, c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("loading certificate: %w", err)
	}
	pool, err := loadCertPool(c.RootCA)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig builds the participant's TLS configuration: it trusts
// only the root CA and presents the configured client certificate.
// Returns nil when TLS is disabled.
func (c TLSConfig) ClientTLSConfig() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.Certificate, c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("loading certificate: %w", err)
	}
	pool, err := loadCertPool(c.RootCA)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading root CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
