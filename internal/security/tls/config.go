// Package tls builds *tls.Config and gRPC transport credentials for the
// master's and workers' listeners and dial connections, from a single
// Config struct shared by both binaries.
package tls

import (
	"crypto/tls"
	"fmt"

	"github.com/predictgrid/predictgrid/internal/servingerr"
)

// Config describes the TLS posture of one listener or one outbound dial:
// the master's client-facing and worker-facing listeners, or a worker's
// dial back to the master.
type Config struct {
	// Enabled turns TLS on for this listener/dial. False means plaintext.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// CertFile is this side's certificate (PEM).
	CertFile string `yaml:"cert_file" json:"cert_file"`

	// KeyFile is this side's private key (PEM).
	KeyFile string `yaml:"key_file" json:"key_file"`

	// ClientCA is the CA used to verify peer certificates under mTLS.
	ClientCA string `yaml:"client_ca" json:"client_ca"`

	// InsecureSkipVerify disables peer certificate verification. Only for
	// local development against a self-signed master/worker pair.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`

	// MinVersion is the minimum accepted TLS version (default TLS 1.2).
	MinVersion uint16 `yaml:"min_version" json:"min_version"`

	// RequireClientCert turns on mutual TLS.
	RequireClientCert bool `yaml:"require_client_cert" json:"require_client_cert"`
}

// DefaultConfig returns TLS disabled with a TLS 1.2 floor, the posture a
// pg-master/pg-worker pair starts with before an operator opts in.
func DefaultConfig() Config {
	return Config{
		Enabled:            false,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: false,
		RequireClientCert:  false,
	}
}

// Validate checks that the fields set are sufficient to build a working
// TLS configuration, returning a servingerr.KindInvalidInputs Status
// describing the first problem found.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if !c.InsecureSkipVerify {
		if c.CertFile == "" {
			return servingerr.InvalidInputs("tls: cert_file is required when TLS is enabled")
		}
		if c.KeyFile == "" {
			return servingerr.InvalidInputs("tls: key_file is required when TLS is enabled")
		}
	}
	if c.RequireClientCert && c.ClientCA == "" {
		return servingerr.InvalidInputs("tls: client_ca is required when require_client_cert is true")
	}
	if c.MinVersion != 0 && c.MinVersion < tls.VersionTLS12 {
		return servingerr.InvalidInputs("tls: min_version must be at least TLS 1.2")
	}

	return nil
}

// IsEnabled reports whether TLS is active for this Config.
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// IsMTLS reports whether mutual TLS (client certificate verification) is
// active.
func (c *Config) IsMTLS() bool {
	return c.Enabled && c.RequireClientCert
}

// MinVersionName returns a human-readable name for MinVersion, for log
// lines.
func (c *Config) MinVersionName() string {
	switch c.MinVersion {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("unknown (0x%04x)", c.MinVersion)
	}
}
