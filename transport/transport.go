// Package transport defines the byte transport contract the request
// engine runs on: a connected duplex stream with deadlines, and a
// dialer that establishes one to an endpoint.
package transport

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrConnClosed       = errors.New("connection is closed")
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// Endpoint is one transport destination. Host holds the address to
// dial, either an IP literal produced by the resolver or a host name.
// ServerName carries the name to verify during a TLS handshake when it
// differs from Host.
type Endpoint struct {
	Host string
	Port uint16
	TLS  bool

	ServerName string
}

func (e Endpoint) Addr() string {
	return e.Host + ":" + strconv.FormatUint(uint64(e.Port), 10)
}

func (e Endpoint) String() string {
	scheme := "tcp"
	if e.TLS {
		scheme = "tcp+tls"
	}
	return scheme + "://" + e.Addr()
}

// Conn is one established byte transport. Deadlines apply to the whole
// transport: a read deadline set in the past unblocks a pending Read.
type Conn interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Dialer establishes connections to endpoints. Implementations perform
// the TLS handshake themselves when the endpoint asks for it.
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}
