package requests

import (
	"io"
	"time"

	"github.com/fpelliccioni/requests/internal/iox"
	"github.com/fpelliccioni/requests/wire"
	"github.com/pkg/errors"
)

// Stream is the live handle on one response body. Exactly one Stream
// references a connection at any instant; finishing the stream — by
// draining it, dumping it or closing it — hands the connection back to
// its pool.
type Stream struct {
	// Head is the response head this stream delivers the body of.
	Head ResponseHead

	// History holds the redirect hops that led to this response,
	// oldest first.
	History []ResponseHead

	// Trailers is filled after a chunked body has been fully read.
	Trailers []wire.Field

	c         *conn
	body      io.Reader
	wantClose bool

	maxBody     uint64
	readTimeout time.Duration
	discard     uint64

	// release hands the conn back; set by the session when the stream
	// is bound to a pool. keep=false closes the conn instead.
	release func(c *conn, keep bool)

	total    uint64
	done     bool
	closed   bool
	finished bool
}

var _ io.ReadCloser = (*Stream)(nil)

// Read yields body bytes, returning io.EOF exactly once the body is
// complete. After EOF, Done reports true and the connection has been
// returned. Read is not safe for concurrent use with itself or with
// Close. Closing the underlying connection (as Session.Close does) while
// a Read is pending completes that read with ErrCancelled.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errors.Wrap(ErrCancelled, "stream is closed")
	}
	if s.done {
		return 0, io.EOF
	}

	deadline := time.Time{}
	if s.readTimeout > 0 {
		deadline = s.c.clock.Now().Add(s.readTimeout)
	}
	_ = s.c.tc.SetReadDeadline(deadline)

	n, err := s.body.Read(p)
	s.total += uint64(n)

	if s.maxBody > 0 && s.total > s.maxBody {
		err := errors.Wrapf(ErrBodyTooLarge, "body exceeds %d bytes", s.maxBody)
		s.fail(err)
		return n, err
	}

	switch {
	case err == nil:
		return n, nil
	case err == io.EOF || errors.Is(err, io.EOF):
		s.done = true
		s.finish(!s.wantClose)
		return n, io.EOF
	default:
		err = classifyExchangeErr(nil, err)
		s.fail(err)
		return n, err
	}
}

// ReadAll drains the body, bounded by the response size limit.
func (s *Stream) ReadAll() ([]byte, error) {
	buf, err := io.ReadAll(s)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Done reports whether the body has been fully read.
func (s *Stream) Done() bool { return s.done }

// Dump discards the remainder of the body so the connection can be
// reused. Past the discard limit the connection is closed instead.
func (s *Stream) Dump() error {
	if s.done || s.closed {
		return nil
	}

	limit := s.discard
	if limit == 0 {
		limit = 1
	}

	drained, err := iox.DiscardLimit(s, limit)
	if err != nil {
		// Read already failed the conn and released.
		return err
	}

	if !drained && !s.done {
		s.fail(errors.Wrap(ErrBodyTooLarge, "dump limit exceeded"))
	}

	return nil
}

// Close cancels reading. A stream closed before its body completed
// marks the connection closing; closing twice is a no-op.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}

	if !s.done {
		_ = s.Dump()
	}

	s.closed = true
	return nil
}

// fail marks the conn closing and releases it.
func (s *Stream) fail(err error) {
	s.c.fail(err)
	s.finish(false)
}

// finish returns the conn exactly once.
func (s *Stream) finish(keep bool) {
	if s.finished {
		return
	}
	s.finished = true

	s.c.mu.Lock()
	s.c.stream = nil
	healthy := s.c.state == stateWorking
	s.c.mu.Unlock()

	keep = keep && healthy

	if s.release != nil {
		s.release(s.c, keep)
		return
	}

	// Pool gone or never set; the conn simply closes.
	if keep {
		s.c.markIdle()
	} else {
		s.c.close()
	}
}
