package pop3

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// StartTLSFunc upgrades an already-connected plaintext stream to TLS,
// the external collaborator named in §1 ("the core calls a
// start_tls(stream, host, opts) -> stream capability"). Swappable so
// tests can substitute an in-memory fake; DefaultStartTLS is the real
// implementation used outside tests.
type StartTLSFunc func(ctx context.Context, conn net.Conn, host string, cfg *tls.Config) (net.Conn, error)

// ConnectTLSFunc dials straight into TLS for implicit-TLS (POP3S)
// connections, the "connect_tls(host, port) -> stream" capability.
type ConnectTLSFunc func(ctx context.Context, host string, port int, cfg *tls.Config) (net.Conn, error)

// DefaultStartTLS performs a standard client-side TLS handshake over an
// existing connection, the STLS upgrade path.
func DefaultStartTLS(ctx context.Context, conn net.Conn, host string, cfg *tls.Config) (net.Conn, error) {
	cfg = cloneOrNewTLSConfig(cfg, host)
	tlsConn := tls.Client(conn, cfg)
	stop := watchCancellation(ctx, tlsConn)
	defer stop()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

// DefaultConnectTLS dials host:port and performs the TLS handshake in
// one step, for implicit-TLS (POP3S, default port 995) connections.
func DefaultConnectTLS(ctx context.Context, host string, port int, cfg *tls.Config) (net.Conn, error) {
	cfg = cloneOrNewTLSConfig(cfg, host)
	addr := fmt.Sprintf("%s:%d", host, port)
	var d tls.Dialer
	d.Config = cfg
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tls dial: %w", err)
	}
	return conn, nil
}

// DefaultConnect dials a plain TCP connection for pop:// or for the
// pre-STLS leg of a STARTTLS connection.
func DefaultConnect(ctx context.Context, host string, port int) (net.Conn, error) {
	var d net.Dialer
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func cloneOrNewTLSConfig(cfg *tls.Config, host string) *tls.Config {
	if cfg == nil {
		return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	out := cfg.Clone()
	if out.ServerName == "" {
		out.ServerName = host
	}
	return out
}
