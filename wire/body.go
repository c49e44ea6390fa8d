package wire

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BodyKind describes how a response body is delimited on the wire.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3
type BodyKind uint8

const (
	// BodyEmpty means the response carries no body.
	BodyEmpty BodyKind = iota
	// BodyFixed means the body is delimited by Content-Length.
	BodyFixed
	// BodyChunked means the body uses chunked transfer coding.
	BodyChunked
	// BodyUntilClose means the body ends when the server closes the
	// connection.
	BodyUntilClose
)

func (k BodyKind) String() string {
	switch k {
	case BodyEmpty:
		return "empty"
	case BodyFixed:
		return "fixed"
	case BodyChunked:
		return "chunked"
	case BodyUntilClose:
		return "until-close"
	}
	return "unknown"
}

var (
	ErrConflictingFraming = errors.New("Content-Length and Transfer-Encoding are mutually exclusive")
	ErrBadContentLength   = errors.New("Content-Length is malformed")
	ErrUnsupportedCoding  = errors.New("transfer coding is unsupported")
)

// ResolveBodyKind derives the framing of a response body per RFC 9112
// §6.3 given the request method and the decoded head.
func ResolveBodyKind(method string, head Head) (kind BodyKind, length uint64, err error) {
	// Responses to HEAD and 1xx/204/304 responses never carry a body.
	if method == "HEAD" ||
		(head.Status >= 100 && head.Status < 200) ||
		head.Status == 204 || head.Status == 304 {
		return BodyEmpty, 0, nil
	}

	te, hasTE := head.Get("Transfer-Encoding")
	cl, hasCL := head.Get("Content-Length")

	if hasTE && hasCL {
		return 0, 0, ErrConflictingFraming
	}

	if hasTE {
		codings := strings.Split(te, ",")
		last := strings.TrimSpace(codings[len(codings)-1])
		if !strings.EqualFold(last, "chunked") {
			return 0, 0, ErrUnsupportedCoding
		}
		return BodyChunked, 0, nil
	}

	if hasCL {
		n, err := strconv.ParseUint(strings.TrimSpace(cl), 10, 64)
		if err != nil {
			return 0, 0, ErrBadContentLength
		}
		if n == 0 {
			return BodyEmpty, 0, nil
		}
		return BodyFixed, n, nil
	}

	return BodyUntilClose, 0, nil
}

// WantsClose reports whether the head asks for the connection to be
// torn down after this exchange.
func WantsClose(head Head) bool {
	for _, v := range head.Values("Connection") {
		for _, opt := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(opt), "close") {
				return true
			}
		}
	}
	return false
}

// NewBodyReader builds the framed body reader for the given kind,
// reading from the connection's own buffered reader. The returned
// reader yields io.EOF exactly at the body's end; a fixed body that is
// cut short yields [io.ErrUnexpectedEOF].
func NewBodyReader(br *bufio.Reader, kind BodyKind, length uint64, trailers *[]Field) io.Reader {
	switch kind {
	case BodyEmpty:
		return emptyReader{}
	case BodyFixed:
		return &fixedReader{br: br, remaining: length}
	case BodyChunked:
		return NewChunkedReader(br, trailers)
	default:
		return &untilCloseReader{br: br}
	}
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

type fixedReader struct {
	br        *bufio.Reader
	remaining uint64
}

func (fr *fixedReader) Read(p []byte) (n int, err error) {
	if fr.remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > fr.remaining {
		p = p[:fr.remaining]
	}

	n, err = fr.br.Read(p)
	fr.remaining -= uint64(n)

	if err == io.EOF && fr.remaining > 0 {
		// Server closed mid-body.
		err = io.ErrUnexpectedEOF
	}
	if err == nil && fr.remaining == 0 {
		err = io.EOF
	}

	return n, err
}

type untilCloseReader struct{ br *bufio.Reader }

func (ur *untilCloseReader) Read(p []byte) (int, error) {
	// A server close is the legitimate end of the body.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.8
	return ur.br.Read(p)
}
