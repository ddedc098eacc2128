package tls

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/credentials"

	"github.com/predictgrid/predictgrid/internal/servingerr"
)

// LoadServerTLS builds a *tls.Config for a master or worker listener from
// cfg. Returns (nil, nil) when TLS is disabled.
func LoadServerTLS(cfg Config) (*tls.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, servingerr.SystemError("load server certificate: %v", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   cfg.MinVersion,
	}

	if cfg.RequireClientCert && cfg.ClientCA != "" {
		caCert, err := os.ReadFile(cfg.ClientCA)
		if err != nil {
			return nil, servingerr.SystemError("read client CA: %v", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, servingerr.SystemError("parse client CA certificate")
		}

		tlsConfig.ClientCAs = caPool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	log.Info().
		Str("cert", cfg.CertFile).
		Bool("mtls", cfg.RequireClientCert).
		Str("min_version", cfg.MinVersionName()).
		Msg("loaded server TLS configuration")

	return tlsConfig, nil
}

// LoadClientTLS builds a *tls.Config for a worker's dial to the master (or
// a client's dial to either), from cfg. Returns (nil, nil) when TLS is
// disabled.
func LoadClientTLS(cfg Config) (*tls.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.Enabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         cfg.MinVersion,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, servingerr.SystemError("load client certificate: %v", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.ClientCA != "" {
		caCert, err := os.ReadFile(cfg.ClientCA)
		if err != nil {
			return nil, servingerr.SystemError("read CA certificate: %v", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, servingerr.SystemError("parse CA certificate")
		}

		tlsConfig.RootCAs = caPool
	}

	log.Debug().
		Bool("mtls", cfg.CertFile != "").
		Bool("skip_verify", cfg.InsecureSkipVerify).
		Msg("loaded client TLS configuration")

	return tlsConfig, nil
}

// ServerCredentials returns gRPC server transport credentials built from
// cfg, or nil if TLS is disabled.
func ServerCredentials(cfg Config) (credentials.TransportCredentials, error) {
	tlsConfig, err := LoadServerTLS(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig == nil {
		return nil, nil
	}
	return credentials.NewTLS(tlsConfig), nil
}

// ClientCredentials returns gRPC client transport credentials built from
// cfg, or nil if TLS is disabled.
func ClientCredentials(cfg Config) (credentials.TransportCredentials, error) {
	tlsConfig, err := LoadClientTLS(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig == nil {
		return nil, nil
	}
	return credentials.NewTLS(tlsConfig), nil
}

// MustLoadServerTLS loads server TLS config, panicking on error. Intended
// for early-startup paths in cmd/pg-master/cmd/pg-worker where a bad TLS
// config should fail fast.
func MustLoadServerTLS(cfg Config) *tls.Config {
	tlsConfig, err := LoadServerTLS(cfg)
	if err != nil {
		panic("failed to load server TLS: " + err.Error())
	}
	return tlsConfig
}

// MustLoadClientTLS loads client TLS config, panicking on error.
func MustLoadClientTLS(cfg Config) *tls.Config {
	tlsConfig, err := LoadClientTLS(cfg)
	if err != nil {
		panic("failed to load client TLS: " + err.Error())
	}
	return tlsConfig
}
