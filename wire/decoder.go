package wire

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultMaxHeadBytes caps the status line plus all header lines of one
// response head.
const DefaultMaxHeadBytes = 64 << 10

var (
	ErrHeadTooLarge        = errors.New("response head exceeds limit")
	ErrMalformedStatusLine = errors.New("status line is malformed")
	ErrMalformedFieldLine  = errors.New("field line is malformed")
	ErrMissingCRBeforeLF   = errors.New("missing CR before LF")
)

// Head is a decoded response head.
type Head struct {
	Version Version
	Status  int
	Reason  string

	Fields []Field
}

// Get returns the value of the first field with the given name,
// compared case-insensitively.
func (h *Head) Get(name string) (string, bool) {
	for _, f := range h.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns all values carried by fields with the given name.
func (h *Head) Values(name string) []string {
	var vs []string
	for _, f := range h.Fields {
		if strings.EqualFold(f.Name, name) {
			vs = append(vs, f.Value)
		}
	}
	return vs
}

// ResponseHeadDecoder decodes response heads from a byte source. The
// source must be the connection's own reader; body bytes following the
// head are left unconsumed.
type ResponseHeadDecoder struct {
	br *bufio.Reader

	// MaxHeadBytes bounds one head. Zero means [DefaultMaxHeadBytes].
	MaxHeadBytes uint
}

func NewResponseHeadDecoder(br *bufio.Reader, maxHeadBytes uint) *ResponseHeadDecoder {
	return &ResponseHeadDecoder{br: br, MaxHeadBytes: maxHeadBytes}
}

// Decode reads one response head.
func (rd *ResponseHeadDecoder) Decode() (Head, error) {
	limit := rd.MaxHeadBytes
	if limit == 0 {
		limit = DefaultMaxHeadBytes
	}

	read := uint(0)

	line, err := rd.readLine(&read, limit)
	if err != nil {
		return Head{}, errors.Wrap(err, "reading status line")
	}

	head, err := parseStatusLine(line)
	if err != nil {
		return Head{}, ErrMalformedStatusLine
	}

	for {
		line, err := rd.readLine(&read, limit)
		if err != nil {
			return Head{}, errors.Wrap(err, "reading field line")
		}

		if len(line) == 0 {
			// End of head.
			break
		}

		field, err := ParseField(line)
		if err != nil {
			return Head{}, ErrMalformedFieldLine
		}

		head.Fields = append(head.Fields, field)
	}

	return head, nil
}

func (rd *ResponseHeadDecoder) readLine(read *uint, limit uint) (string, error) {
	line, err := readCRLFLine(rd.br, limit-*read)
	if err != nil {
		return "", err
	}

	*read += uint(len(line)) + 2
	if *read > limit {
		return "", ErrHeadTooLarge
	}

	return line, nil
}

// readCRLFLine reads one CRLF-terminated line, excluding the
// terminator. Lines longer than limit fail with [ErrHeadTooLarge].
func readCRLFLine(br *bufio.Reader, limit uint) (string, error) {
	var b strings.Builder
	for {
		chunk, err := br.ReadSlice(lf)
		b.Write(chunk)

		if uint(b.Len()) > limit+2 {
			return "", ErrHeadTooLarge
		}

		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err == io.EOF && b.Len() > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}

		break
	}

	line := b.String()
	line = line[:len(line)-1] // Strip LF.

	if len(line) == 0 || line[len(line)-1] != cr {
		return "", ErrMissingCRBeforeLF
	}

	return line[:len(line)-1], nil
}

func parseStatusLine(line string) (Head, error) {
	parts := strings.SplitN(line, string(sp), 3)
	if len(parts) < 2 {
		return Head{}, errors.New("status line is malformed")
	}

	ver, err := ParseVersion(parts[0])
	if err != nil {
		return Head{}, errors.Wrap(err, "parsing version")
	}

	code, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || len(parts[1]) != 3 {
		return Head{}, errors.Errorf("status code is malformed: %q", parts[1])
	}

	// reason-phrase is optional.
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	return Head{Version: ver, Status: int(code), Reason: reason}, nil
}
