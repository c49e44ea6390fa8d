package requests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fpelliccioni/requests/resolve"
	"github.com/fpelliccioni/requests/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestConnRequestProvide(t *testing.T) {
	req := newConnRequest(context.Background())

	c := &conn{}
	require.True(t, req.provide(c, nil))
	assert.Equal(t, c, (<-req.result).conn)

	// Already satisfied.
	assert.False(t, req.provide(&conn{}, nil))

	req = newConnRequest(context.Background())
	err := errors.New("hehe err")
	require.True(t, req.provide(nil, err))
	assert.Equal(t, err, (<-req.result).err)
}

func TestConnRequestCancel(t *testing.T) {
	req := newConnRequest(context.Background())

	assert.False(t, req.cancel())
	// A cancelled request refuses late hand-offs.
	assert.False(t, req.provide(&conn{}, nil))

	req = newConnRequest(context.Background())
	require.True(t, req.provide(&conn{}, nil))
	assert.True(t, req.cancel())
}

func TestConnRequestShouldSkip(t *testing.T) {
	req := newConnRequest(context.Background())
	assert.False(t, req.shouldSkip())

	req.satisfied = true
	assert.True(t, req.shouldSkip())

	ctx, cancel := context.WithCancel(context.Background())
	req = newConnRequest(ctx)
	cancel()
	assert.True(t, req.shouldSkip())
}

type PoolTestSuite struct {
	suite.Suite

	ts    *testServer
	pool  *pool
	clock *clock.Mock
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (s *PoolTestSuite) SetupTest() {
	s.ts = newTestServer(func(req *testReq) string {
		return textResponse(200, "OK", "ok")
	})
	s.clock = clock.NewMock()

	opts := testOptions()
	opts.Conn.LimitPerHost = 2
	opts.Timeout.Idle = time.Minute

	s.pool = newPool(
		hostKey{scheme: "http", host: "h", port: 80},
		s.ts.Dialer,
		resolve.NewStaticResolver(map[string][]string{"h": {"192.0.2.1"}}),
		testLogger(),
		s.clock,
		opts,
	)
}

func (s *PoolTestSuite) TearDownTest() {
	s.pool.close()
	s.ts.Dialer.Wait()
}

func (s *PoolTestSuite) TestAcquireCreatesAndReuses() {
	ctx := context.Background()

	c1, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	s.Equal(stateWorking, c1.currentState())
	s.Equal(1, s.pool.connCount())

	s.pool.release(c1, true)
	s.Equal(stateIdle, c1.currentState())

	c2, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	s.Same(c1, c2)
	s.Equal(1, s.pool.connCount())
	s.Equal(1, s.ts.Dialer.Dials())

	s.pool.release(c2, true)
}

func (s *PoolTestSuite) TestAcquireDiscardedConnReplaced() {
	ctx := context.Background()

	c1, err := s.pool.acquire(ctx)
	s.Require().NoError(err)

	s.pool.release(c1, false)
	s.Equal(stateClosed, c1.currentState())
	s.Equal(0, s.pool.connCount())

	c2, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	s.NotSame(c1, c2)
	s.Equal(2, s.ts.Dialer.Dials())

	s.pool.release(c2, true)
}

func (s *PoolTestSuite) TestWaitersFIFO() {
	ctx := context.Background()

	c1, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	c2, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	s.Equal(2, s.pool.connCount())

	// Both conns busy and the cap reached: the next acquires queue.
	type result struct {
		order int
		conn  *conn
	}
	results := make(chan result, 3)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(order int) {
			defer wg.Done()
			<-start
			// Stagger entries so the queue order is deterministic.
			time.Sleep(time.Duration(order) * 30 * time.Millisecond)
			c, err := s.pool.acquire(ctx)
			s.NoError(err)
			results <- result{order: order, conn: c}
		}(i)
	}
	close(start)

	// Let all three enqueue.
	time.Sleep(150 * time.Millisecond)

	s.pool.release(c1, true)
	first := <-results
	s.Equal(0, first.order)
	s.Same(c1, first.conn)

	s.pool.release(c2, true)
	second := <-results
	s.Equal(1, second.order)

	s.pool.release(first.conn, true)
	third := <-results
	s.Equal(2, third.order)

	wg.Wait()

	s.Equal(2, s.pool.connCount())
	s.Equal(2, s.ts.Dialer.Dials())

	s.pool.release(second.conn, true)
	s.pool.release(third.conn, true)
}

func (s *PoolTestSuite) TestWaiterCancelled() {
	ctx := context.Background()

	c1, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	c2, err := s.pool.acquire(ctx)
	s.Require().NoError(err)

	waitCtx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := s.pool.acquire(waitCtx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err = <-done
	s.ErrorIs(err, ErrCancelled)

	// Pool counts are unchanged by the cancelled waiter.
	s.Equal(2, s.pool.connCount())

	// A release after the cancellation must not strand the conn.
	s.pool.release(c1, true)
	s.Equal(stateIdle, c1.currentState())

	s.pool.release(c2, true)
}

func (s *PoolTestSuite) TestReplenishServesWaiterAfterDiscard() {
	ctx := context.Background()

	c1, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	c2, err := s.pool.acquire(ctx)
	s.Require().NoError(err)

	done := make(chan *conn, 1)
	go func() {
		c, err := s.pool.acquire(ctx)
		s.NoError(err)
		done <- c
	}()

	time.Sleep(50 * time.Millisecond)

	// Discarding a conn dials a replacement for the queued waiter.
	s.pool.release(c1, false)

	c3 := <-done
	s.NotSame(c1, c3)
	s.Equal(stateWorking, c3.currentState())

	s.pool.release(c2, true)
	s.pool.release(c3, true)
}

func (s *PoolTestSuite) TestIdleEviction() {
	ctx := context.Background()

	c1, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	s.pool.release(c1, true)

	s.clock.Add(2 * time.Minute)

	c2, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	s.NotSame(c1, c2)
	s.Equal(stateClosed, c1.currentState())
	s.Equal(2, s.ts.Dialer.Dials())

	s.pool.release(c2, true)
}

func (s *PoolTestSuite) TestLookupCached() {
	ctx := context.Background()

	eps1, err := s.pool.lookup(ctx)
	s.Require().NoError(err)
	eps2, err := s.pool.lookup(ctx)
	s.Require().NoError(err)
	s.Equal(eps1, eps2)
}

func (s *PoolTestSuite) TestLookupFailure() {
	s.pool.resolver = resolve.NewStaticResolver(nil)
	s.pool.eps = nil

	_, err := s.pool.acquire(context.Background())
	s.ErrorIs(err, ErrDNSFailure)
}

func (s *PoolTestSuite) TestConnectFallbackAcrossEndpoints() {
	flaky := &flakyDialer{failFirst: 2, next: s.ts.Dialer}
	s.pool.dialer = flaky
	s.pool.resolver = resolve.NewStaticResolver(map[string][]string{
		"h": {"192.0.2.1", "192.0.2.2", "192.0.2.3"},
	})

	c, err := s.pool.acquire(context.Background())
	s.Require().NoError(err)
	s.Equal("192.0.2.3", c.ep.Host)

	s.pool.release(c, true)
}

func (s *PoolTestSuite) TestConnectAllEndpointsFail() {
	s.pool.dialer = failingDialer{err: errors.New("nope")}

	_, err := s.pool.acquire(context.Background())
	s.ErrorIs(err, ErrConnectFailed)
	s.Equal(0, s.pool.connCount())
}

func (s *PoolTestSuite) TestCloseFailsWaiters() {
	ctx := context.Background()

	c1, err := s.pool.acquire(ctx)
	s.Require().NoError(err)
	c2, err := s.pool.acquire(ctx)
	s.Require().NoError(err)

	done := make(chan error, 1)
	go func() {
		_, err := s.pool.acquire(ctx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)

	s.pool.close()

	s.ErrorIs(<-done, ErrCancelled)

	_, err = s.pool.acquire(ctx)
	s.ErrorIs(err, ErrCancelled)

	_ = c1
	_ = c2
}

// flakyDialer fails the first failFirst dials, then delegates.
type flakyDialer struct {
	mu        sync.Mutex
	failFirst int
	next      transport.Dialer
}

func (d *flakyDialer) Dial(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
	d.mu.Lock()
	fail := d.failFirst > 0
	if fail {
		d.failFirst--
	}
	d.mu.Unlock()

	if fail {
		return nil, errors.New("dial refused")
	}
	return d.next.Dial(ctx, ep)
}
