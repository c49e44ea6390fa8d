package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
)

var ErrTLSHandshake = errors.New("tls handshake failed")

// NetDialer dials endpoints over the operating system's TCP stack and
// performs TLS handshakes with the process trust store.
type NetDialer struct {
	// Timeout bounds one Dial including the TLS handshake. Zero means
	// the context alone bounds it.
	Timeout time.Duration

	// TLSConfig is cloned per connection. Nil means a default config
	// verifying against the system roots.
	TLSConfig *tls.Config
}

var _ Dialer = (*NetDialer)(nil)

func (d *NetDialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	nd := net.Dialer{}
	raw, err := nd.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", ep.Addr())
	}

	if !ep.TLS {
		return netConn{raw}, nil
	}

	cfg := d.TLSConfig.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		name := ep.ServerName
		if name == "" {
			name = ep.Host
		}
		cfg.ServerName = name
	}

	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, errors.Wrapf(ErrTLSHandshake, "%s: %v", ep.Addr(), err)
	}

	return netConn{tc}, nil
}

// netConn adapts net.Conn deadline errors to the transport sentinels.
type netConn struct{ net.Conn }

var _ Conn = netConn{}

func (c netConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	return n, mapNetError(err)
}

func (c netConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	return n, mapNetError(err)
}

func mapNetError(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.Wrap(ErrDeadlineExceeded, err.Error())
	}
	if errors.Is(err, net.ErrClosed) {
		return errors.Wrap(ErrConnClosed, err.Error())
	}
	return err
}
