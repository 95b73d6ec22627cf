// Package pop3tls builds *tls.Config values for POP3S and STLS
// connections, including optional PKCS#12 client-certificate loading
// for servers that require mutual TLS.
package pop3tls

import (
	"crypto/tls"
	"fmt"
	"os"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Options configures the TLS behavior of a POP3 connection.
type Options struct {
	ServerName         string
	InsecureSkipVerify bool
	MinVersion         uint16

	// ClientCertPath and ClientCertPassword, if ClientCertPath is
	// non-empty, load a PKCS#12 bundle to present as a client
	// certificate during the handshake.
	ClientCertPath     string
	ClientCertPassword string
}

// Build constructs a *tls.Config from opts. A zero Options yields a
// config with TLS 1.2 as the floor and no client certificate, matching
// the defaults used when a caller does not configure TLS explicitly.
func Build(opts Options) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         opts.ServerName,
		InsecureSkipVerify: opts.InsecureSkipVerify,
		MinVersion:         opts.MinVersion,
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}

	if opts.ClientCertPath == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(opts.ClientCertPath)
	if err != nil {
		return nil, fmt.Errorf("pop3tls: reading client certificate bundle: %w", err)
	}
	key, cert, caCerts, err := pkcs12.DecodeChain(raw, opts.ClientCertPassword)
	if err != nil {
		return nil, fmt.Errorf("pop3tls: decoding PKCS#12 bundle: %w", err)
	}
	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
	}
	for _, ca := range caCerts {
		tlsCert.Certificate = append(tlsCert.Certificate, ca.Raw)
	}
	cfg.Certificates = []tls.Certificate{tlsCert}
	return cfg, nil
}
