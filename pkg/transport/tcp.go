package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// TCPDialer dials plain or TLS-wrapped TCP connections for bolt://,
// bolt+s://, and bolt+ssc:// (spec §6.5). TLSConfig is nil for unencrypted
// dials.
type TCPDialer struct {
	TLSConfig *tls.Config
	// KeepAlive is the OS-level TCP keepalive interval; zero disables it.
	KeepAlive time.Duration
}

// NewTCPDialer returns a TCPDialer with a 30s keepalive and no TLS.
func NewTCPDialer() *TCPDialer {
	return &TCPDialer{KeepAlive: 30 * time.Second}
}

func (d *TCPDialer) Dial(ctx context.Context, address string) (Channel, error) {
	keepAlive := d.KeepAlive
	if keepAlive <= 0 {
		keepAlive = -1
	}
	netDialer := &net.Dialer{KeepAlive: keepAlive}
	conn, err := netDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		if d.KeepAlive > 0 {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(d.KeepAlive)
		}
	}
	if d.TLSConfig != nil {
		host, _, splitErr := net.SplitHostPort(address)
		cfg := d.TLSConfig
		if splitErr == nil && cfg.ServerName == "" {
			clone := cfg.Clone()
			clone.ServerName = host
			cfg = clone
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("transport: tls handshake with %s: %w", address, err)
		}
		conn = tlsConn
	}
	return &tcpChannel{conn: conn}, nil
}

type tcpChannel struct {
	conn net.Conn
}

func (c *tcpChannel) Read(p []byte) (int, error)  { return c.conn.Read(p) }
func (c *tcpChannel) Write(p []byte) (int, error) { return c.conn.Write(p) }
func (c *tcpChannel) Close() error                { return c.conn.Close() }
func (c *tcpChannel) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}
func (c *tcpChannel) RemoteAddr() string { return c.conn.RemoteAddr().String() }
