// Package wire implements the HTTP/1.1 message codec: request
// serialization onto a byte sink and response head plus body-framing
// decoding from a byte source.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112
package wire

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	sp = ' '
	cr = '\r'
	lf = '\n'
)

var crlf = []byte{cr, lf}

// Version is [Major, Minor].
type Version [2]uint

var Version11 = Version{1, 1}

// ParseVersion parses http version text (e.g. "HTTP/1.1") into [Version].
func ParseVersion(s string) (Version, error) {
	const prefix = "HTTP/"
	if !strings.HasPrefix(s, prefix) {
		return Version{}, errors.Errorf("http version prefix not found: %s", s)
	}

	first, second, found := strings.Cut(s[len(prefix):], ".")
	if !found {
		return Version{}, errors.Errorf("dot separator not found on version: %s", s)
	}

	major, err1 := strconv.ParseUint(first, 10, 64)
	minor, err2 := strconv.ParseUint(second, 10, 64)
	if err1 != nil || err2 != nil {
		return Version{}, errors.Errorf("http version is not convertible to int: %s", s)
	}

	return Version{uint(major), uint(minor)}, nil
}

func (ver Version) String() string {
	return "HTTP/" + strconv.FormatUint(uint64(ver[0]), 10) +
		"." + strconv.FormatUint(uint64(ver[1]), 10)
}

// Field is one header field line.
type Field struct{ Name, Value string }

// ParseField parses a raw field line into [Field].
func ParseField(fieldLine string) (Field, error) {
	name, value, found := strings.Cut(fieldLine, ":")
	if !found {
		return Field{}, errors.Errorf("colon separator not found on header: %q", fieldLine)
	}

	// No whitespace is allowed between field name and colon.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-2
	if strings.HasSuffix(name, " ") || strings.HasSuffix(name, "\t") {
		return Field{}, errors.New("field name has trailing whitespace")
	}

	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-3
	value = strings.Trim(value, " \t")

	return Field{Name: name, Value: value}, nil
}

func (f Field) text() string { return f.Name + ": " + f.Value }
