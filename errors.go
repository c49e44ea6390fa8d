package requests

import (
	"context"
	"io"

	"github.com/fpelliccioni/requests/transport"
	"github.com/fpelliccioni/requests/wire"
	"github.com/pkg/errors"
)

// Error kinds. Every operation fails with exactly one of these,
// matchable with errors.Is; the chain carries the underlying cause.
var (
	ErrInsecureTransport = errors.New("insecure transport")
	ErrInvalidURL        = errors.New("invalid url")
	ErrDNSFailure        = errors.New("dns lookup failed")
	ErrConnectFailed     = errors.New("connect failed")
	ErrTLSHandshake      = errors.New("tls handshake failed")
	ErrTimeout           = errors.New("timeout")
	ErrCancelled         = errors.New("cancelled")
	ErrProtocol          = errors.New("protocol error")
	ErrBodyTooLarge      = errors.New("body too large")
	ErrUnexpectedEOF     = errors.New("unexpected eof")
	ErrTooManyRedirects  = errors.New("too many redirects")
	ErrForbiddenRedirect = errors.New("forbidden redirect")
	ErrIO                = errors.New("io error")
	ErrDecode            = errors.New("decode error")
)

// RedirectError is returned when redirect following stops abnormally.
// It matches ErrTooManyRedirects or ErrForbiddenRedirect via errors.Is
// and carries the hops followed so far.
type RedirectError struct {
	Kind     error
	Location string
	History  []ResponseHead
}

func (e *RedirectError) Error() string {
	return e.Kind.Error() + ": " + e.Location
}

func (e *RedirectError) Unwrap() error { return e.Kind }

var wireProtocolErrs = []error{
	wire.ErrMalformedStatusLine,
	wire.ErrMalformedFieldLine,
	wire.ErrMissingCRBeforeLF,
	wire.ErrHeadTooLarge,
	wire.ErrConflictingFraming,
	wire.ErrBadContentLength,
	wire.ErrUnsupportedCoding,
}

// classifyExchangeErr folds a raw exchange failure into the error
// taxonomy. ctx may be nil.
func classifyExchangeErr(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case isKind(err):
		return err
	}

	if ctx != nil {
		switch ctx.Err() {
		case context.Canceled:
			return errors.Wrap(ErrCancelled, err.Error())
		case context.DeadlineExceeded:
			return errors.Wrap(ErrTimeout, err.Error())
		}
	}

	switch {
	case errors.Is(err, transport.ErrDeadlineExceeded):
		return errors.Wrap(ErrTimeout, err.Error())
	case errors.Is(err, transport.ErrConnClosed):
		// A close racing the exchange surfaces as cancellation.
		return errors.Wrap(ErrCancelled, err.Error())
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return errors.Wrap(ErrUnexpectedEOF, err.Error())
	}

	for _, sentinel := range wireProtocolErrs {
		if errors.Is(err, sentinel) {
			return errors.Wrap(ErrProtocol, err.Error())
		}
	}

	return errors.Wrap(ErrIO, err.Error())
}

// isKind reports whether err already carries one of the taxonomy
// sentinels.
func isKind(err error) bool {
	for _, sentinel := range []error{
		ErrInsecureTransport, ErrInvalidURL, ErrDNSFailure,
		ErrConnectFailed, ErrTLSHandshake, ErrTimeout, ErrCancelled,
		ErrProtocol, ErrBodyTooLarge, ErrUnexpectedEOF,
		ErrTooManyRedirects, ErrForbiddenRedirect, ErrIO, ErrDecode,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// classifyConnectErr folds a dial failure into the taxonomy.
func classifyConnectErr(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case isKind(err):
		return err
	}

	if ctx != nil {
		switch ctx.Err() {
		case context.Canceled:
			return errors.Wrap(ErrCancelled, err.Error())
		case context.DeadlineExceeded:
			return errors.Wrap(ErrTimeout, err.Error())
		}
	}

	if errors.Is(err, transport.ErrTLSHandshake) {
		return errors.Wrap(ErrTLSHandshake, err.Error())
	}

	return errors.Wrap(ErrConnectFailed, err.Error())
}
