package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/mockenv/mockenv/pkg/environment"
)

// ServerConfig returns the TLS configuration for opts, or nil when TLS is
// disabled. Relative paths resolve against baseDir. Without a certificate
// pair a self-signed certificate covering hosts is generated. A CA file
// makes the server verify client certificates that are presented.
func ServerConfig(opts *environment.TLSOptions, baseDir string, hosts ...string) (*tls.Config, error) {
	if opts == nil || !opts.Enabled {
		return nil, nil
	}

	var cert tls.Certificate
	var err error
	if opts.CertPath != "" {
		cert, err = tls.LoadX509KeyPair(
			environment.ResolvePath(baseDir, opts.CertPath),
			environment.ResolvePath(baseDir, opts.KeyPath),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
	} else {
		gen, genErr := GenerateSelfSigned(DefaultCertificateConfig(hosts...))
		if genErr != nil {
			return nil, fmt.Errorf("failed to generate certificate: %w", genErr)
		}
		cert, err = tls.X509KeyPair(gen.CertPEM, gen.KeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS certificate: %w", err)
		}
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if opts.CAPath != "" {
		path := environment.ResolvePath(baseDir, opts.CAPath)
		caPEM, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %s: %w", path, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate from %s", path)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return cfg, nil
}
