// Package cookies defines the narrow cookie jar contract the request
// engine drives, and a memory jar built on net/http/cookiejar with the
// public suffix list.
package cookies

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

// Cookie is one name=value pair to send.
type Cookie struct {
	Name  string
	Value string
}

// Jar is what the engine needs from a cookie store: matching cookies on
// request send, ingestion of Set-Cookie values on response receive.
// Implementations must be safe for concurrent use.
type Jar interface {
	// Collect returns the cookies applicable to a request to u.
	Collect(u *url.URL) []Cookie

	// Store ingests one Set-Cookie header value received from u.
	Store(u *url.URL, setCookie string)
}

// MemoryJar is an in-memory Jar with domain matching per RFC 6265,
// backed by the public suffix list. It records ingested cookies so the
// jar can be snapshotted to and restored from a byte stream.
type MemoryJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar

	log []logEntry
}

type logEntry struct {
	URL       string `json:"url"`
	SetCookie string `json:"set_cookie"`
}

var _ Jar = (*MemoryJar)(nil)

func NewMemoryJar() *MemoryJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New cannot fail with a non-nil options struct.
		panic(err)
	}
	return &MemoryJar{jar: jar}
}

func (m *MemoryJar) Collect(u *url.URL) []Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()

	hc := m.jar.Cookies(u)
	if len(hc) == 0 {
		return nil
	}

	out := make([]Cookie, 0, len(hc))
	for _, c := range hc {
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

func (m *MemoryJar) Store(u *url.URL, setCookie string) {
	c, err := parseSetCookie(setCookie)
	if err != nil {
		// Unparsable Set-Cookie values are dropped.
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.jar.SetCookies(u, []*http.Cookie{c})
	m.log = append(m.log, logEntry{URL: u.String(), SetCookie: setCookie})
}

// parseSetCookie parses a single Set-Cookie header value, equivalent to
// http.ParseSetCookie (added in Go 1.23) on toolchains that predate it.
func parseSetCookie(line string) (*http.Cookie, error) {
	header := http.Header{}
	header.Add("Set-Cookie", line)
	cookies := (&http.Response{Header: header}).Cookies()
	if len(cookies) == 0 {
		return nil, errors.New("http: no cookies found in Set-Cookie header")
	}
	return cookies[0], nil
}

// Save snapshots the jar onto w. The snapshot replays on Load; expiry
// is re-evaluated at collect time.
func (m *MemoryJar) Save(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := json.NewEncoder(w).Encode(m.log); err != nil {
		return errors.Wrap(err, "encoding cookie snapshot")
	}
	return nil
}

// Load replays a snapshot written by Save into the jar.
func (m *MemoryJar) Load(r io.Reader) error {
	var log []logEntry
	if err := json.NewDecoder(r).Decode(&log); err != nil {
		return errors.Wrap(err, "decoding cookie snapshot")
	}

	for _, e := range log {
		u, err := url.Parse(e.URL)
		if err != nil {
			return errors.Wrapf(err, "parsing snapshot url %q", e.URL)
		}
		m.Store(u, e.SetCookie)
	}

	return nil
}
