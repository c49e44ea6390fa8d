package wire

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// RequestHead is everything preceding a request body on the wire.
// Host and Close are injected as header fields by the encoder; Fields
// must not carry Host, Connection or framing headers of their own.
type RequestHead struct {
	Method string
	Target string
	Host   string

	// Close requests "Connection: close" instead of keep-alive.
	Close bool

	Fields []Field
}

// RequestEncoder serializes requests onto a byte sink.
type RequestEncoder struct {
	bw *bufio.Writer
}

func NewRequestEncoder(w io.Writer) *RequestEncoder {
	return &RequestEncoder{bw: bufio.NewWriter(w)}
}

// Encode writes the request line, the headers and the body.
//
// contentLength > 0 emits Content-Length framing; a negative value
// switches to "Transfer-Encoding: chunked". A zero contentLength emits
// no framing header and no body bytes. body may be nil when
// contentLength is zero.
func (re *RequestEncoder) Encode(head RequestHead, body io.Reader, contentLength int64) error {
	if err := re.encodeRequestLine(head); err != nil {
		return errors.Wrap(err, "encoding request line")
	}

	if err := re.encodeHeaders(head, contentLength); err != nil {
		return errors.Wrap(err, "encoding headers")
	}

	// Flush the head before the body so short requests leave in one
	// write and body errors can't corrupt a half-buffered head.
	if err := re.bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing request line & headers")
	}

	if err := re.encodeBody(body, contentLength); err != nil {
		return errors.Wrap(err, "encoding body")
	}

	if err := re.bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing request body")
	}

	return nil
}

func (re *RequestEncoder) writeLine(line string) error {
	if _, err := re.bw.WriteString(line); err != nil {
		return errors.Wrap(err, "writing line")
	}

	if _, err := re.bw.Write(crlf); err != nil {
		return errors.Wrap(err, "writing line terminator")
	}

	return nil
}

func (re *RequestEncoder) encodeRequestLine(head RequestHead) error {
	target := head.Target
	if target == "" {
		target = "/"
	}

	line := head.Method + string(sp) + target + string(sp) + Version11.String()

	return re.writeLine(line)
}

func (re *RequestEncoder) encodeHeaders(head RequestHead, contentLength int64) error {
	// Host is mandatory and comes first.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3.2
	if err := re.writeLine(Field{Name: "Host", Value: head.Host}.text()); err != nil {
		return err
	}

	connection := "keep-alive"
	if head.Close {
		connection = "close"
	}
	if err := re.writeLine(Field{Name: "Connection", Value: connection}.text()); err != nil {
		return err
	}

	switch {
	case contentLength > 0:
		f := Field{Name: "Content-Length", Value: strconv.FormatInt(contentLength, 10)}
		if err := re.writeLine(f.text()); err != nil {
			return err
		}
	case contentLength < 0:
		if err := re.writeLine(Field{Name: "Transfer-Encoding", Value: "chunked"}.text()); err != nil {
			return err
		}
	}

	for _, field := range head.Fields {
		if err := re.writeLine(field.text()); err != nil {
			return errors.Wrap(err, "writing field")
		}
	}

	// An empty line ends the head.
	return re.writeLine("")
}

func (re *RequestEncoder) encodeBody(body io.Reader, contentLength int64) error {
	switch {
	case contentLength == 0:
		return nil
	case contentLength > 0:
		n, err := io.Copy(re.bw, io.LimitReader(body, contentLength))
		if err != nil {
			return errors.Wrap(err, "writing body")
		}
		if n < contentLength {
			return errors.Errorf("body source ended early: %d of %d bytes", n, contentLength)
		}
		return nil
	default:
		cw := NewChunkedWriter(re.bw, nil)
		if _, err := io.Copy(cw, body); err != nil {
			return errors.Wrap(err, "writing chunked body")
		}
		return errors.Wrap(cw.Close(), "terminating chunked body")
	}
}
