package requests

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/fpelliccioni/requests/body"
	"github.com/fpelliccioni/requests/cookies"
	"github.com/fpelliccioni/requests/resolve"
	"github.com/fpelliccioni/requests/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Session maps request URLs onto per-host pools and applies the
// cross-request policy: redirect following, cookie jar, default
// headers, TLS enforcement. A Session is safe for concurrent use.
type Session struct {
	opts           Options
	jar            cookies.Jar
	defaultHeaders Headers

	dialer   transport.Dialer
	resolver resolve.Resolver
	logger   *slog.Logger
	clock    clock.Clock

	breakers *breakerSet

	mu     sync.Mutex
	pools  map[hostKey]*pool
	closed bool
}

// SessionConfig configures a Session. Zero fields get production
// defaults; Options compared equal to the zero value becomes
// DefaultOptions.
type SessionConfig struct {
	Options        Options
	Jar            cookies.Jar
	DefaultHeaders Headers

	Dialer   transport.Dialer
	Resolver resolve.Resolver
	Logger   *slog.Logger
	Clock    clock.Clock

	// Breaker enables a per-host circuit breaker around exchanges.
	Breaker *BreakerSettings
}

func NewSession(cfg SessionConfig) *Session {
	opts := cfg.Options
	if opts == (Options{}) {
		opts = DefaultOptions()
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &transport.NetDialer{Timeout: opts.Timeout.Connect}
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = &resolve.NetResolver{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	s := &Session{
		opts:           opts,
		jar:            cfg.Jar,
		defaultHeaders: cfg.DefaultHeaders.Clone(),
		dialer:         dialer,
		resolver:       resolver,
		logger:         logger,
		clock:          clk,
		pools:          make(map[hostKey]*pool),
	}

	if cfg.Breaker != nil {
		s.breakers = newBreakerSet(*cfg.Breaker)
	}

	return s
}

// Close shuts every pool down: queued waiters fail with ErrCancelled,
// connections close. In-flight streams complete with ErrCancelled.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pools := s.pools
	s.pools = nil
	s.mu.Unlock()

	for _, p := range pools {
		p.close()
	}

	return nil
}

// pool fetches or creates the pool for a host-key.
func (s *Session) pool(key hostKey) (*pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Wrap(ErrCancelled, "session is closed")
	}

	p, ok := s.pools[key]
	if !ok {
		p = newPool(key, s.dialer, s.resolver, s.logger, s.clock, s.opts)
		s.pools[key] = p
	}

	return p, nil
}

// Ropen performs the request and returns a live stream over the final
// response body, following redirects per policy. The caller owns the
// stream and must drain or close it.
func (s *Session) Ropen(ctx context.Context, method, rawurl string, src body.Source, ro RequestOptions) (*Stream, error) {
	opts := s.opts
	if ro.Opts != nil {
		opts = *ro.Opts
	}

	if src == nil {
		src = body.Empty{}
	}

	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidURL, "%q: %v", rawurl, err)
	}

	var history []ResponseHead

	cur := u
	curMethod := method
	curSrc := src

	for hops := 0; ; {
		st, err := s.exchange(ctx, curMethod, cur, curSrc, ro, opts)
		if err != nil {
			return nil, err
		}

		if s.jar != nil {
			for _, sc := range st.Head.Headers.Values("Set-Cookie") {
				s.jar.Store(cur, sc)
			}
		}

		st.Head.URL = cur

		if !st.Head.IsRedirect() || opts.MaxRedirects == 0 || opts.RedirectMode == RedirectNone {
			st.History = history
			return st, nil
		}

		location, ok := st.Head.Location()
		if !ok {
			_ = st.Close()
			return nil, errors.Wrap(ErrProtocol, "redirect without Location")
		}

		if hops >= int(opts.MaxRedirects) {
			_ = st.Close()
			return nil, &RedirectError{
				Kind:     ErrTooManyRedirects,
				Location: location,
				History:  history,
			}
		}

		next, err := resolveLocation(cur, location)
		if err != nil {
			_ = st.Close()
			return nil, err
		}

		if !redirectAllowed(opts.RedirectMode, cur, next) {
			_ = st.Close()
			return nil, &RedirectError{
				Kind:     ErrForbiddenRedirect,
				Location: location,
				History:  history,
			}
		}

		newMethod, dropBody := redirectedMethod(st.Head.Status, curMethod)

		s.logger.Debug("following redirect",
			"status", st.Head.Status, "location", location, "hop", hops+1)

		// The prior hop's body is discarded; its conn goes back idle
		// unless the response demanded close, in which case the pool
		// closes it before the next hop dials.
		_ = st.Close()

		history = append(history, st.Head)
		cur = next
		curMethod = newMethod
		if dropBody {
			curSrc = body.Empty{}
		}
		hops++
	}
}

// exchange performs one hop: pool acquire, request write, head read.
func (s *Session) exchange(ctx context.Context, method string, u *url.URL, src body.Source, ro RequestOptions, opts Options) (*Stream, error) {
	key, err := hostKeyOf(u)
	if err != nil {
		return nil, err
	}

	if opts.EnforceTLS && key.scheme != "https" {
		return nil, errors.Wrapf(ErrInsecureTransport, "scheme %q", key.scheme)
	}

	p, err := s.pool(key)
	if err != nil {
		return nil, err
	}

	do := func() (*Stream, error) { return s.exchangeOn(ctx, p, method, u, src, ro, opts) }

	if s.breakers != nil {
		return s.breakers.execute(key, do)
	}
	return do()
}

func (s *Session) exchangeOn(ctx context.Context, p *pool, method string, u *url.URL, src body.Source, ro RequestOptions, opts Options) (*Stream, error) {
	headers := s.buildHeaders(u, src, ro)

	c, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	rc, err := src.Open()
	if err != nil {
		p.release(c, true)
		return nil, errors.Wrap(ErrIO, err.Error())
	}

	contentLength := int64(-1)
	if n, ok := src.Len(); ok {
		contentLength = n
	}

	st, err := c.ropen(ctx, exchangeRequest{
		method:        method,
		target:        requestTarget(u),
		host:          u.Host,
		fields:        headers.fields(),
		body:          rc,
		contentLength: contentLength,
		close:         !opts.KeepAlive,

		exchangeTimeout: opts.Timeout.Exchange,
		bodyReadTimeout: opts.Timeout.BodyRead,
		maxHeadBytes:    opts.Limits.MaxHeadBytes,
		maxBodySize:     opts.Limits.MaxResponseSize,
		discardLimit:    opts.Limits.DiscardLimit,
	})
	if err != nil {
		p.release(c, false)
		return nil, err
	}

	st.release = p.release

	return st, nil
}

// buildHeaders merges default headers (lower precedence), caller
// headers, the body's content type, and the jar's cookies.
func (s *Session) buildHeaders(u *url.URL, src body.Source, ro RequestOptions) Headers {
	h := s.defaultHeaders.Clone()
	for k, values := range ro.Headers {
		h[k] = append([]string(nil), values...)
	}

	if ct := src.ContentType(); ct != "" {
		if _, ok := h.Get("Content-Type"); !ok {
			h.Set("Content-Type", ct)
		}
	}

	if s.jar != nil {
		if collected := s.jar.Collect(u); len(collected) > 0 {
			pairs := make([]string, 0, len(collected))
			for _, c := range collected {
				pairs = append(pairs, c.Name+"="+c.Value)
			}
			h.Set("Cookie", strings.Join(pairs, "; "))
		}
	}

	return h
}

func hostKeyOf(u *url.URL) (hostKey, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return hostKey{}, errors.Wrapf(ErrInvalidURL, "unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return hostKey{}, errors.Wrap(ErrInvalidURL, "url has no host")
	}

	port := uint64(80)
	if scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		var err error
		port, err = strconv.ParseUint(p, 10, 16)
		if err != nil {
			return hostKey{}, errors.Wrapf(ErrInvalidURL, "port %q", p)
		}
	}

	return hostKey{scheme: scheme, host: strings.ToLower(host), port: uint16(port)}, nil
}

// requestTarget renders the origin-form target: path plus query.
func requestTarget(u *url.URL) string {
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

// Jar exposes the session's cookie jar, nil when none is configured.
func (s *Session) Jar() cookies.Jar { return s.jar }

var _ io.Closer = (*Session)(nil)
