package requests

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRedirectAllowed(t *testing.T) {
	testcases := []struct {
		desc  string
		mode  RedirectMode
		from  string
		to    string
		allow bool
	}{
		{desc: "any", mode: RedirectAny, from: "http://a.com/", to: "https://b.org/", allow: true},
		{desc: "none", mode: RedirectNone, from: "http://a.com/", to: "http://a.com/x", allow: false},

		{desc: "same endpoint ok", mode: RedirectSameEndpoint, from: "http://a.com/x", to: "http://a.com/y", allow: true},
		{desc: "same endpoint implicit port", mode: RedirectSameEndpoint, from: "http://a.com/", to: "http://a.com:80/", allow: true},
		{desc: "same endpoint scheme change", mode: RedirectSameEndpoint, from: "http://a.com/", to: "https://a.com/", allow: false},
		{desc: "same endpoint port change", mode: RedirectSameEndpoint, from: "http://a.com/", to: "http://a.com:8080/", allow: false},

		{desc: "same host ok", mode: RedirectSameHost, from: "http://a.com/", to: "https://a.com:8443/", allow: true},
		{desc: "same host other host", mode: RedirectSameHost, from: "http://a.com/", to: "http://b.com/", allow: false},

		{desc: "same port ok", mode: RedirectSamePort, from: "http://a.com/", to: "http://a.com:80/x", allow: true},
		{desc: "same port changed", mode: RedirectSamePort, from: "http://a.com/", to: "http://a.com:81/", allow: false},

		{desc: "private domain subdomain", mode: RedirectPrivateDomain, from: "http://www.example.com/", to: "http://api.example.com/", allow: true},
		{desc: "private domain other domain", mode: RedirectPrivateDomain, from: "http://example.com/", to: "http://other.com/", allow: false},
		{desc: "private domain localhost", mode: RedirectPrivateDomain, from: "http://localhost:8080/", to: "http://localhost:8080/x", allow: true},

		{desc: "public suffix shared", mode: RedirectPublicSuffix, from: "http://a.co.uk/", to: "http://b.co.uk/", allow: true},
		{desc: "public suffix different", mode: RedirectPublicSuffix, from: "http://a.com/", to: "http://b.org/", allow: false},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			got := redirectAllowed(tc.mode, mustURL(t, tc.from), mustURL(t, tc.to))
			assert.Equal(t, tc.allow, got)
		})
	}
}

func TestResolveLocation(t *testing.T) {
	cur := mustURL(t, "http://h/a/b?q=1")

	testcases := []struct {
		desc     string
		location string
		want     string
	}{
		{desc: "absolute", location: "http://other.org/x", want: "http://other.org/x"},
		{desc: "root relative", location: "/get", want: "http://h/get"},
		{desc: "relative", location: "c", want: "http://h/a/c"},
		{desc: "scheme relative", location: "//other.org/y", want: "http://other.org/y"},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := resolveLocation(cur, tc.location)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestRedirectedMethod(t *testing.T) {
	testcases := []struct {
		status     int
		method     string
		wantMethod string
		wantDrop   bool
	}{
		{status: 303, method: "POST", wantMethod: "GET", wantDrop: true},
		{status: 303, method: "PUT", wantMethod: "GET", wantDrop: true},
		{status: 303, method: "HEAD", wantMethod: "HEAD", wantDrop: true},
		{status: 301, method: "POST", wantMethod: "GET", wantDrop: true},
		{status: 302, method: "POST", wantMethod: "GET", wantDrop: true},
		{status: 301, method: "PUT", wantMethod: "PUT", wantDrop: false},
		{status: 302, method: "PATCH", wantMethod: "PATCH", wantDrop: false},
		{status: 307, method: "POST", wantMethod: "POST", wantDrop: false},
		{status: 308, method: "DELETE", wantMethod: "DELETE", wantDrop: false},
	}

	for _, tc := range testcases {
		method, drop := redirectedMethod(tc.status, tc.method)
		assert.Equal(t, tc.wantMethod, method, "status %d %s", tc.status, tc.method)
		assert.Equal(t, tc.wantDrop, drop, "status %d %s", tc.status, tc.method)
	}
}
