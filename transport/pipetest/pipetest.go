// Package pipetest provides an in-memory transport so the engine can be
// exercised end to end without sockets.
package pipetest

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fpelliccioni/requests/transport"
	"github.com/pkg/errors"
)

// Dialer hands every dialed connection's server side to Serve, each on
// its own goroutine. Wait blocks until all handlers have returned.
type Dialer struct {
	// Serve handles the server side of one connection. It must close c
	// before returning.
	Serve func(c transport.Conn)

	// Fail makes Dial return this error instead of connecting.
	Fail error

	dials atomic.Int64
	live  atomic.Int64
	wg    sync.WaitGroup
}

var _ transport.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Fail != nil {
		return nil, d.Fail
	}

	d.dials.Add(1)
	d.live.Add(1)

	client, server := net.Pipe()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.live.Add(-1)
		d.Serve(pipeConn{server})
	}()

	return pipeConn{client}, nil
}

// Dials reports how many connections were ever established.
func (d *Dialer) Dials() int { return int(d.dials.Load()) }

// Live reports how many server handlers are still running.
func (d *Dialer) Live() int { return int(d.live.Load()) }

// Wait blocks until every server handler has returned.
func (d *Dialer) Wait() { d.wg.Wait() }

// pipeConn adapts net.Pipe's error values to the transport sentinels.
type pipeConn struct{ net.Conn }

var _ transport.Conn = pipeConn{}

func (c pipeConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	return n, mapErr(err)
}

func (c pipeConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	return n, mapErr(err)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.Wrap(transport.ErrDeadlineExceeded, err.Error())
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return errors.Wrap(transport.ErrConnClosed, err.Error())
	}
	return err
}
