package requests

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fpelliccioni/requests/transport"
	"github.com/fpelliccioni/requests/wire"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type connState uint8

const (
	stateFresh connState = iota
	stateConnecting
	stateIdle
	stateWorking
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateConnecting:
		return "connecting"
	case stateIdle:
		return "idle"
	case stateWorking:
		return "working"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// conn owns one byte transport to one endpoint and serializes one
// request/response exchange at a time on it. It never references its
// pool; release flows through the stream's back-reference.
type conn struct {
	dialer transport.Dialer
	logger *slog.Logger
	clock  clock.Clock

	mu     sync.Mutex // guards state, idleAt, stream; never held over I/O
	state  connState
	ep     transport.Endpoint
	tc     transport.Conn
	br     *bufio.Reader
	idleAt time.Time
	stream *Stream
}

func newConn(dialer transport.Dialer, logger *slog.Logger, clk clock.Clock) *conn {
	return &conn{
		dialer: dialer,
		logger: logger,
		clock:  clk,
		state:  stateFresh,
	}
}

// connect dials the endpoint. On success the conn is idle.
func (c *conn) connect(ctx context.Context, ep transport.Endpoint) error {
	c.mu.Lock()
	if c.state != stateFresh {
		c.mu.Unlock()
		return errors.Wrapf(ErrCancelled, "connect on %s conn", c.state)
	}
	c.state = stateConnecting
	c.ep = ep
	c.mu.Unlock()

	tc, err := c.dialer.Dial(ctx, ep)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = stateClosed
		return classifyConnectErr(ctx, err)
	}

	if c.state != stateConnecting {
		// Closed while dialing.
		_ = tc.Close()
		return errors.Wrap(ErrCancelled, "conn closed during connect")
	}

	c.tc = tc
	c.br = bufio.NewReader(tc)
	c.state = stateIdle
	c.idleAt = c.clock.Now()

	c.logger.Debug("connection established", "endpoint", ep.String())

	return nil
}

// reserve transitions idle to working, claiming the conn for one
// exchange. It reports false when the conn is not available.
func (c *conn) reserve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateIdle {
		return false
	}
	c.state = stateWorking
	c.idleAt = time.Time{}
	return true
}

// markIdle transitions working back to idle after a drained exchange.
func (c *conn) markIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateWorking {
		return
	}
	c.state = stateIdle
	c.idleAt = c.clock.Now()
}

// fail marks the conn closing: the transport is no longer trusted, and
// the conn leaves the pool once its stream lets go.
func (c *conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosing || c.state == stateClosed {
		return
	}
	c.state = stateClosing

	if err != nil {
		c.logger.Debug("connection failed",
			"endpoint", c.ep.String(), "error", err.Error())
	}
}

// close is idempotent. Closing a working conn aborts the in-flight
// exchange: its stream's pending read completes with ErrCancelled.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return
	}
	c.state = stateClosed

	if c.tc != nil {
		_ = c.tc.Close()
	}
}

func (c *conn) currentState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// idleTimeoutExceeded assumes the caller decides eviction; it reports
// false for non-idle conns.
func (c *conn) idleTimeoutExceeded(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.idleAt.IsZero() || timeout == 0 {
		return false
	}
	return c.clock.Since(c.idleAt) >= timeout
}

// exchangeRequest is one request ready for the wire plus the limits
// that govern the exchange.
type exchangeRequest struct {
	method string
	target string
	host   string
	fields []wire.Field

	body          io.ReadCloser // closed by ropen
	contentLength int64         // negative means chunked

	close bool // ask the server to close after this exchange

	exchangeTimeout time.Duration
	bodyReadTimeout time.Duration
	maxHeadBytes    uint
	maxBodySize     uint64
	discardLimit    uint64
}

// maxInformationalResponses bounds 1xx heads skipped per exchange.
const maxInformationalResponses = 10

// ropen writes the request and reads the response head, returning a
// stream bound to the response body. The conn must have been reserved.
// On failure the conn is marked closing and the error is classified.
func (c *conn) ropen(ctx context.Context, req exchangeRequest) (*Stream, error) {
	c.mu.Lock()
	if c.state != stateWorking || c.stream != nil {
		state := c.state
		c.mu.Unlock()
		if req.body != nil {
			_ = req.body.Close()
		}
		return nil, errors.Wrapf(ErrCancelled, "ropen on %s conn", state)
	}
	tc, br := c.tc, c.br
	c.mu.Unlock()

	// A cancel arriving mid-exchange aborts the transport; the blocked
	// write or read then fails and the conn leaves the pool.
	exchangeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-exchangeDone:
		}
	}()

	st, err := c.exchange(ctx, tc, br, req)
	close(exchangeDone)

	if err != nil {
		c.fail(err)
		return nil, classifyExchangeErr(ctx, err)
	}

	c.mu.Lock()
	if c.state != stateWorking {
		// Closed or failed while the head was in flight.
		c.mu.Unlock()
		return nil, errors.Wrap(ErrCancelled, "conn closed during exchange")
	}
	c.stream = st
	c.mu.Unlock()

	return st, nil
}

func (c *conn) exchange(ctx context.Context, tc transport.Conn, br *bufio.Reader, req exchangeRequest) (*Stream, error) {
	if req.body != nil {
		defer req.body.Close()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Time{}
	if req.exchangeTimeout > 0 {
		deadline = c.clock.Now().Add(req.exchangeTimeout)
	}
	_ = tc.SetWriteDeadline(deadline)
	_ = tc.SetReadDeadline(deadline)

	enc := wire.NewRequestEncoder(tc)
	head := wire.RequestHead{
		Method: req.method,
		Target: req.target,
		Host:   req.host,
		Close:  req.close,
		Fields: req.fields,
	}
	if err := enc.Encode(head, req.body, req.contentLength); err != nil {
		return nil, errors.Wrap(err, "writing request")
	}

	dec := wire.NewResponseHeadDecoder(br, req.maxHeadBytes)

	var resHead wire.Head
	for i := 0; ; i++ {
		var err error
		resHead, err = dec.Decode()
		if err != nil {
			return nil, errors.Wrap(err, "reading response head")
		}

		if resHead.Status >= 200 {
			break
		}
		// Informational response; the real head follows.
		// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.2
		if i+1 >= maxInformationalResponses {
			return nil, errors.Wrap(wire.ErrMalformedStatusLine, "too many 1xx responses")
		}
	}

	kind, length, err := wire.ResolveBodyKind(req.method, resHead)
	if err != nil {
		return nil, errors.Wrap(err, "resolving body framing")
	}

	// The exchange deadline covered head read; body reads get their
	// own per-read deadline from the stream.
	_ = tc.SetReadDeadline(time.Time{})
	_ = tc.SetWriteDeadline(time.Time{})

	st := &Stream{
		Head: ResponseHead{
			Status:  resHead.Status,
			Reason:  resHead.Reason,
			Headers: headersFrom(resHead.Fields),
		},
		c:           c,
		wantClose:   wire.WantsClose(resHead) || kind == wire.BodyUntilClose || req.close,
		maxBody:     req.maxBodySize,
		readTimeout: req.bodyReadTimeout,
		discard:     req.discardLimit,
	}
	st.body = wire.NewBodyReader(br, kind, length, &st.Trailers)

	return st, nil
}
