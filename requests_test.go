package requests

import (
	"bufio"
	"io"
	"log/slog"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/fpelliccioni/requests/resolve"
	"github.com/fpelliccioni/requests/transport"
	"github.com/fpelliccioni/requests/transport/pipetest"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testReq is one request as seen by the scripted server.
type testReq struct {
	Method  string
	Target  string
	Headers Headers
	Body    []byte
}

func readTestReq(br *bufio.Reader) (*testReq, error) {
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, io.ErrUnexpectedEOF
	}

	req := &testReq{
		Method:  parts[0],
		Target:  parts[1],
		Headers: make(Headers),
	}

	mime, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	for k, vs := range mime {
		for _, v := range vs {
			req.Headers.Add(k, v)
		}
	}

	if cl, ok := req.Headers.Get("Content-Length"); ok {
		n, err := strconv.Atoi(cl)
		if err != nil {
			return nil, err
		}
		req.Body = make([]byte, n)
		if _, err := io.ReadFull(br, req.Body); err != nil {
			return nil, err
		}
	} else if te, ok := req.Headers.Get("Transfer-Encoding"); ok && te == "chunked" {
		for {
			sizeLine, err := tp.ReadLine()
			if err != nil {
				return nil, err
			}
			size, err := strconv.ParseInt(sizeLine, 16, 64)
			if err != nil {
				return nil, err
			}
			if size == 0 {
				// Trailer section up to the blank line.
				for {
					l, err := tp.ReadLine()
					if err != nil {
						return nil, err
					}
					if l == "" {
						break
					}
				}
				break
			}
			chunk := make([]byte, size+2)
			if _, err := io.ReadFull(br, chunk); err != nil {
				return nil, err
			}
			req.Body = append(req.Body, chunk[:size]...)
		}
	}

	return req, nil
}

// testServer speaks scripted HTTP/1.1 over the in-memory transport.
// respond returns the raw bytes to write back for each request; a
// response carrying "Connection: close" closes the connection after
// the write.
type testServer struct {
	Dialer *pipetest.Dialer

	respond func(req *testReq) string

	mu   sync.Mutex
	reqs []*testReq
}

func newTestServer(respond func(req *testReq) string) *testServer {
	ts := &testServer{respond: respond}
	ts.Dialer = &pipetest.Dialer{Serve: ts.serve}
	return ts
}

func (ts *testServer) serve(c transport.Conn) {
	defer c.Close()

	br := bufio.NewReader(c)
	for {
		req, err := readTestReq(br)
		if err != nil {
			return
		}

		ts.mu.Lock()
		ts.reqs = append(ts.reqs, req)
		ts.mu.Unlock()

		res := ts.respond(req)
		if _, err := c.Write([]byte(res)); err != nil {
			return
		}

		if strings.Contains(res, "Connection: close") {
			return
		}
	}
}

// Requests returns everything the server has seen so far.
func (ts *testServer) Requests() []*testReq {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]*testReq(nil), ts.reqs...)
}

func textResponse(status int, reason, body string, extra ...string) string {
	var b strings.Builder
	b.WriteString("HTTP/1.1 " + strconv.Itoa(status) + " " + reason + "\r\n")
	for _, f := range extra {
		b.WriteString(f + "\r\n")
	}
	b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// testOptions is a permissive baseline for in-memory tests: no TLS
// enforcement, generous redirects, no timeouts.
func testOptions() Options {
	return Options{
		EnforceTLS:   false,
		MaxRedirects: 5,
		RedirectMode: RedirectAny,
		KeepAlive:    true,
		Conn:         ConnOptions{LimitPerHost: 4},
		Limits:       LimitOptions{DiscardLimit: 64 << 10},
	}
}

// resolveStatic maps every test host onto a documentation address.
func resolveStatic() *resolve.StaticResolver {
	return resolve.NewStaticResolver(map[string][]string{
		"h":               {"192.0.2.1"},
		"example.com":     {"192.0.2.2"},
		"www.example.com": {"192.0.2.3"},
		"other.org":       {"192.0.2.4"},
	})
}

// newTestSession wires a session to the scripted server. Hosts resolve
// statically, so any host name works.
func newTestSession(t *testing.T, ts *testServer, opts Options) *Session {
	t.Helper()

	s := NewSession(SessionConfig{
		Options:  opts,
		Dialer:   ts.Dialer,
		Resolver: resolveStatic(),
		Logger:   testLogger(),
	})

	t.Cleanup(func() {
		_ = s.Close()
		ts.Dialer.Wait()
	})

	return s
}
