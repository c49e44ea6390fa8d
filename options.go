// Package requests is an asynchronous, pooled HTTP/1.1 client engine:
// per-host connection reuse behind a bounded pool, a session layer
// carrying redirect and cookie policy, and a streaming response
// abstraction with buffered convenience helpers on top.
package requests

import "time"

// RedirectMode restricts which redirect targets a session follows.
type RedirectMode uint8

const (
	// RedirectNone returns redirect responses to the caller unfollowed.
	RedirectNone RedirectMode = iota
	// RedirectSameEndpoint follows only to the identical scheme, host
	// and port.
	RedirectSameEndpoint
	// RedirectSameHost follows only to the same host.
	RedirectSameHost
	// RedirectSamePort follows only to the same host and port.
	RedirectSamePort
	// RedirectPrivateDomain follows within the same registrable domain
	// per the public suffix list.
	RedirectPrivateDomain
	// RedirectPublicSuffix follows within the same public suffix.
	RedirectPublicSuffix
	// RedirectAny follows unconditionally.
	RedirectAny
)

func (m RedirectMode) String() string {
	switch m {
	case RedirectNone:
		return "none"
	case RedirectSameEndpoint:
		return "same-endpoint"
	case RedirectSameHost:
		return "same-host"
	case RedirectSamePort:
		return "same-port"
	case RedirectPrivateDomain:
		return "private-domain"
	case RedirectPublicSuffix:
		return "public-suffix"
	case RedirectAny:
		return "any"
	}
	return "unknown"
}

// Options carries the cross-request policy of a session. A zero value
// passed to NewSession is replaced by DefaultOptions.
type Options struct {
	// EnforceTLS rejects plain http:// URLs.
	EnforceTLS bool

	// MaxRedirects caps followed hops; 0 disables following.
	MaxRedirects uint16

	// RedirectMode scopes which redirect targets are followed.
	RedirectMode RedirectMode

	// KeepAlive offers persistent connections; when false every
	// exchange asks the server to close.
	KeepAlive bool

	Conn    ConnOptions
	Timeout TimeoutOptions
	Limits  LimitOptions
}

type ConnOptions struct {
	// LimitPerHost caps concurrent connections per host-key.
	LimitPerHost uint
}

type TimeoutOptions struct {
	// Connect bounds one dial including the TLS handshake.
	Connect time.Duration

	// Exchange bounds writing the request plus reading the response
	// head.
	Exchange time.Duration

	// BodyRead bounds each individual body read.
	BodyRead time.Duration

	// Idle evicts pooled connections unused for this long.
	Idle time.Duration

	// ResolveTTL bounds how long cached endpoint lookups are reused.
	ResolveTTL time.Duration
}

type LimitOptions struct {
	// MaxResponseSize caps cumulative body bytes per response;
	// 0 means unbounded.
	MaxResponseSize uint64

	// MaxHeadBytes caps one response head; 0 means the wire default
	// (64 KiB).
	MaxHeadBytes uint

	// DiscardLimit caps how many unread body bytes are drained to
	// return a connection to the pool; beyond it the connection is
	// closed instead.
	DiscardLimit uint64
}

// DefaultOptions mirrors the library's stock policy: TLS enforced,
// redirects followed within the registrable domain, keep-alive on.
func DefaultOptions() Options {
	return Options{
		EnforceTLS:   true,
		MaxRedirects: 12,
		RedirectMode: RedirectPrivateDomain,
		KeepAlive:    true,
		Conn: ConnOptions{
			LimitPerHost: 6,
		},
		Timeout: TimeoutOptions{
			Connect:    30 * time.Second,
			Exchange:   30 * time.Second,
			BodyRead:   30 * time.Second,
			Idle:       90 * time.Second,
			ResolveTTL: time.Minute,
		},
		Limits: LimitOptions{
			MaxResponseSize: 0,
			MaxHeadBytes:    0,
			DiscardLimit:    256 << 10,
		},
	}
}

// RequestOptions carries per-call inputs for one request.
type RequestOptions struct {
	// Headers take precedence over the session's default headers.
	Headers Headers

	// Opts overrides the session options for this request when non-nil.
	Opts *Options
}
