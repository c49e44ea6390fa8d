package requests

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fpelliccioni/requests/internal/queue"
	"github.com/fpelliccioni/requests/resolve"
	"github.com/fpelliccioni/requests/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// hostKey indexes pools: one pool per (scheme, host, port).
type hostKey struct {
	scheme string
	host   string
	port   uint16
}

func (k hostKey) String() string {
	return k.scheme + "://" + k.host + ":" + strconv.FormatUint(uint64(k.port), 10)
}

// connRequest is one caller suspended in acquire. provide and cancel
// race through satisfied: whichever flips it first wins, so a conn is
// never handed to a caller that already gave up.
type connRequest struct {
	ctx context.Context

	mu        sync.Mutex
	satisfied bool
	result    chan connResult // buffered, capacity 1
}

type connResult struct {
	conn *conn
	err  error
}

func newConnRequest(ctx context.Context) *connRequest {
	return &connRequest{ctx: ctx, result: make(chan connResult, 1)}
}

// provide hands a result to the waiter. It reports false when the
// waiter was already satisfied or cancelled.
func (r *connRequest) provide(c *conn, err error) (success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.satisfied {
		return false
	}

	r.result <- connResult{conn: c, err: err}
	r.satisfied = true

	return true
}

// cancel claims the request for the caller. It reports true when a
// result was already provided: the caller must then drain result and
// return the conn.
func (r *connRequest) cancel() (alreadyProvided bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.satisfied {
		return true
	}
	r.satisfied = true
	return false
}

// shouldSkip reports whether a dequeued waiter is no longer worth
// serving.
func (r *connRequest) shouldSkip() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.ctx.Done():
		return true
	default:
	}

	return r.satisfied
}

// pool lends ready connections for one host-key: idle reuse first, new
// dials up to the cap, strict-FIFO waiting past it.
type pool struct {
	key      hostKey
	dialer   transport.Dialer
	resolver resolve.Resolver
	logger   *slog.Logger
	clock    clock.Clock

	limit       uint
	idleTimeout time.Duration
	resolveTTL  time.Duration

	mu         sync.Mutex // guards everything below; no I/O under it
	eps        []transport.Endpoint
	resolvedAt time.Time
	conns      []*conn
	waiters    *queue.FIFO[*connRequest]
	closed     bool
}

func newPool(
	key hostKey,
	dialer transport.Dialer,
	resolver resolve.Resolver,
	logger *slog.Logger,
	clk clock.Clock,
	opts Options,
) *pool {
	limit := opts.Conn.LimitPerHost
	if limit == 0 {
		limit = 1
	}

	return &pool{
		key:         key,
		dialer:      dialer,
		resolver:    resolver,
		logger:      logger,
		clock:       clk,
		limit:       limit,
		idleTimeout: opts.Timeout.Idle,
		resolveTTL:  opts.Timeout.ResolveTTL,
		waiters:     queue.NewFIFO[*connRequest](0),
	}
}

// lookup resolves the pool's endpoints, reusing a cached result within
// the TTL. Concurrent first lookups may both resolve; last write wins.
func (p *pool) lookup(ctx context.Context) ([]transport.Endpoint, error) {
	p.mu.Lock()
	if p.eps != nil && (p.resolveTTL == 0 || p.clock.Since(p.resolvedAt) < p.resolveTTL) {
		eps := p.eps
		p.mu.Unlock()
		return eps, nil
	}
	p.mu.Unlock()

	eps, err := p.resolver.Resolve(ctx, p.key.host, p.key.port, p.key.scheme == "https")
	if err != nil {
		return nil, errors.Wrap(ErrDNSFailure, err.Error())
	}

	p.mu.Lock()
	p.eps = eps
	p.resolvedAt = p.clock.Now()
	p.mu.Unlock()

	return eps, nil
}

// acquire lends one working conn: an idle one when available, a fresh
// dial when below the cap, otherwise the caller queues FIFO.
func (p *pool) acquire(ctx context.Context) (*conn, error) {
	eps, err := p.lookup(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, errors.Wrap(ErrCancelled, "pool is closed")
	}

	p.evictLocked()

	for _, c := range p.conns {
		if c.reserve() {
			p.mu.Unlock()
			return c, nil
		}
	}

	if uint(len(p.conns)) < p.limit {
		c := newConn(p.dialer, p.logger, p.clock)
		p.conns = append(p.conns, c)
		p.mu.Unlock()

		return p.connectAndReserve(ctx, c, eps)
	}

	req := newConnRequest(ctx)
	p.waiters.Enqueue(req)
	p.mu.Unlock()

	return p.await(ctx, req)
}

// connectAndReserve dials endpoints in order until one succeeds. The
// placeholder conn already counts against the cap.
func (p *pool) connectAndReserve(ctx context.Context, c *conn, eps []transport.Endpoint) (*conn, error) {
	var lastErr error
	for _, ep := range eps {
		lastErr = c.connect(ctx, ep)
		if lastErr == nil {
			if !c.reserve() {
				// Closed between connect and reserve.
				p.remove(c)
				return nil, errors.Wrap(ErrCancelled, "conn closed after connect")
			}
			return c, nil
		}

		if ctx.Err() != nil {
			break
		}

		// The conn is closed after a failed dial; restart it for the
		// next endpoint.
		c.mu.Lock()
		c.state = stateFresh
		c.mu.Unlock()
	}

	p.remove(c)

	if lastErr == nil {
		return nil, errors.Wrap(ErrConnectFailed, "no endpoints to dial")
	}
	if errors.Is(lastErr, ErrCancelled) || errors.Is(lastErr, ErrTimeout) || errors.Is(lastErr, ErrTLSHandshake) {
		return nil, lastErr
	}
	return nil, errors.Wrap(ErrConnectFailed, lastErr.Error())
}

// await suspends the caller until a conn is handed over or the context
// ends. A cancelled waiter that lost the race to a hand-off returns the
// conn to the pool.
func (p *pool) await(ctx context.Context, req *connRequest) (*conn, error) {
	select {
	case result := <-req.result:
		if result.err != nil {
			return nil, result.err
		}
		return result.conn, nil

	case <-ctx.Done():
		if req.cancel() {
			// A result was already committed; take it and put the
			// conn back.
			result := <-req.result
			if result.err == nil {
				p.release(result.conn, true)
			}
		}
		return nil, classifyConnectErr(ctx, ctx.Err())
	}
}

// release takes a conn back from a finished exchange. keep=false
// removes and closes it; a queued waiter then gets a replacement dial.
func (p *pool) release(c *conn, keep bool) {
	if !keep {
		p.remove(c)
		c.close()
		p.replenish()
		return
	}

	// Idle first, then wake: a waiter enqueued while this conn was
	// working is guaranteed to find either an idle conn on its scan or
	// a hand-off here.
	c.markIdle()

	p.mu.Lock()
	for p.waiters.Len() > 0 {
		req, _ := p.waiters.Dequeue()
		if req.shouldSkip() {
			continue
		}

		if !c.reserve() {
			// A concurrent acquire reserved the conn directly; its
			// release will serve the queue.
			p.waiters.Enqueue(req)
			break
		}

		if req.provide(c, nil) {
			p.mu.Unlock()
			return
		}

		c.markIdle()
	}
	p.mu.Unlock()
}

// replenish dials a replacement when a conn left the pool but waiters
// remain.
func (p *pool) replenish() {
	p.mu.Lock()

	var req *connRequest
	for p.waiters.Len() > 0 {
		candidate, _ := p.waiters.Dequeue()
		if !candidate.shouldSkip() {
			req = candidate
			break
		}
	}

	if req == nil || p.closed || uint(len(p.conns)) >= p.limit {
		if req != nil {
			// Don't strand the waiter.
			p.waiters.Enqueue(req)
		}
		p.mu.Unlock()
		return
	}

	c := newConn(p.dialer, p.logger, p.clock)
	p.conns = append(p.conns, c)
	eps := p.eps
	p.mu.Unlock()

	go func() {
		conn, err := p.connectAndReserve(req.ctx, c, eps)
		if err != nil {
			req.provide(nil, err)
			return
		}
		if !req.provide(conn, nil) {
			p.release(conn, true)
		}
	}()
}

// remove drops a conn from the pool's multiset.
func (p *pool) remove(c *conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for idx, cand := range p.conns {
		if cand == c {
			p.conns = append(p.conns[:idx], p.conns[idx+1:]...)
			return
		}
	}
}

// evictLocked closes conns idle past the timeout. Called with p.mu
// held on every pool access.
func (p *pool) evictLocked() {
	for idx := len(p.conns) - 1; idx >= 0; idx-- {
		c := p.conns[idx]

		if c.idleTimeoutExceeded(p.idleTimeout) {
			p.conns = append(p.conns[:idx], p.conns[idx+1:]...)
			c.close()
			p.logger.Debug("idle connection evicted", "pool", p.key.String())
		}
	}
}

// connCount reports tracked conns; used by session shutdown and tests.
func (p *pool) connCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// close tears the pool down: waiters fail, conns close.
func (p *pool) close() {
	p.mu.Lock()
	p.closed = true

	for p.waiters.Len() > 0 {
		req, _ := p.waiters.Dequeue()
		req.provide(nil, errors.Wrap(ErrCancelled, "pool is closed"))
	}

	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
