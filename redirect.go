package requests

import (
	"net/url"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

// redirectAllowed checks one hop against the session's redirect mode.
// from and to are the current and the proposed URL.
func redirectAllowed(mode RedirectMode, from, to *url.URL) bool {
	switch mode {
	case RedirectAny:
		return true
	case RedirectNone:
		return false
	case RedirectSameEndpoint:
		return to.Scheme == from.Scheme &&
			to.Hostname() == from.Hostname() &&
			urlPort(to) == urlPort(from)
	case RedirectSameHost:
		return to.Hostname() == from.Hostname()
	case RedirectSamePort:
		return to.Hostname() == from.Hostname() && urlPort(to) == urlPort(from)
	case RedirectPrivateDomain:
		return sameRegistrableDomain(from.Hostname(), to.Hostname())
	case RedirectPublicSuffix:
		return samePublicSuffix(from.Hostname(), to.Hostname())
	}
	return false
}

// sameRegistrableDomain compares eTLD+1 per the public suffix list.
// A host equal to the other always passes, covering IPs and hosts
// without a registrable domain (e.g. "localhost").
func sameRegistrableDomain(a, b string) bool {
	if a == b {
		return true
	}

	da, errA := publicsuffix.EffectiveTLDPlusOne(a)
	db, errB := publicsuffix.EffectiveTLDPlusOne(b)
	if errA != nil || errB != nil {
		return false
	}

	return da == db
}

// samePublicSuffix compares the PSL suffix of both hosts.
func samePublicSuffix(a, b string) bool {
	if a == b {
		return true
	}

	sa, _ := publicsuffix.PublicSuffix(a)
	sb, _ := publicsuffix.PublicSuffix(b)
	if sa == "" || sb == "" {
		return false
	}

	return sa == sb
}

// resolveLocation resolves a Location header against the hop's URL.
func resolveLocation(cur *url.URL, location string) (*url.URL, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(ErrProtocol, "malformed Location %q: %v", location, err)
	}
	return cur.ResolveReference(ref), nil
}

// redirectedMethod applies the method rewrite rule for one hop:
// 303 always becomes GET; 301/302 become GET only for POST; 307/308
// preserve the method and body.
func redirectedMethod(status int, method string) (newMethod string, dropBody bool) {
	switch status {
	case 303:
		if method == "HEAD" {
			return "HEAD", true
		}
		return "GET", true
	case 301, 302:
		if method == "POST" {
			return "GET", true
		}
		return method, false
	default: // 307, 308
		return method, false
	}
}

// urlPort returns the explicit or scheme-default port.
func urlPort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch u.Scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}
