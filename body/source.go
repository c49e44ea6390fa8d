// Package body provides request body sources: lazily opened byte
// streams with a content type and an optional known length. Sources are
// replayable so a request can be re-sent on a 307/308 redirect.
package body

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"os"

	"github.com/pkg/errors"
)

// Source is a request body. Open returns a fresh reader over the whole
// content; it may be called once per send attempt. Len returns the
// content length in bytes, or ok=false when it is unknown (the body is
// then sent with chunked framing).
type Source interface {
	ContentType() string
	Len() (n int64, ok bool)
	Open() (io.ReadCloser, error)
}

// Empty is the absent body.
type Empty struct{}

var _ Source = Empty{}

func (Empty) ContentType() string { return "" }

func (Empty) Len() (int64, bool) { return 0, true }

func (Empty) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

// Bytes sends a byte slice verbatim.
type Bytes struct {
	Data []byte
	Type string
}

var _ Source = Bytes{}

func (b Bytes) ContentType() string { return b.Type }

func (b Bytes) Len() (int64, bool) { return int64(len(b.Data)), true }

func (b Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// String sends a string as text/plain.
func String(s string) Bytes {
	return Bytes{Data: []byte(s), Type: "text/plain; charset=utf-8"}
}

// JSON marshals v once at construction and sends it as
// application/json. Marshal failure surfaces on Open.
func JSON(v any) Source {
	data, err := json.Marshal(v)
	return jsonSource{data: data, err: err}
}

type jsonSource struct {
	data []byte
	err  error
}

func (jsonSource) ContentType() string { return "application/json" }

func (s jsonSource) Len() (int64, bool) { return int64(len(s.data)), s.err == nil }

func (s jsonSource) Open() (io.ReadCloser, error) {
	if s.err != nil {
		return nil, errors.Wrap(s.err, "marshaling json body")
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// Form sends url-encoded form values.
func Form(values url.Values) Source {
	return Bytes{
		Data: []byte(values.Encode()),
		Type: "application/x-www-form-urlencoded",
	}
}

// File streams a file from disk. Its length is determined per send, so
// a grown or truncated file is framed correctly on redirect replays.
type File struct {
	Path string
	Type string
}

var _ Source = File{}

func (f File) ContentType() string {
	if f.Type != "" {
		return f.Type
	}
	return "application/octet-stream"
}

func (f File) Len() (int64, bool) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

func (f File) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	return file, errors.Wrap(err, "opening body file")
}

// Reader adapts a plain reader into a one-shot Source with unknown
// length. It cannot be replayed: a second Open fails, which surfaces as
// a failed 307/308 redirect hop.
func Reader(r io.Reader, contentType string) Source {
	return &readerSource{r: r, typ: contentType}
}

type readerSource struct {
	r    io.Reader
	typ  string
	used bool
}

func (s *readerSource) ContentType() string { return s.typ }

func (s *readerSource) Len() (int64, bool) { return 0, false }

func (s *readerSource) Open() (io.ReadCloser, error) {
	if s.used {
		return nil, errors.New("reader body source cannot be replayed")
	}
	s.used = true

	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}
