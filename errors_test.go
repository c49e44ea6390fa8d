package requests

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fpelliccioni/requests/transport"
	"github.com/fpelliccioni/requests/wire"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassifyExchangeErr(t *testing.T) {
	testcases := []struct {
		desc string
		err  error
		want error
	}{
		{desc: "already classified", err: errors.Wrap(ErrBodyTooLarge, "x"), want: ErrBodyTooLarge},
		{desc: "deadline", err: errors.Wrap(transport.ErrDeadlineExceeded, "x"), want: ErrTimeout},
		{desc: "conn closed", err: errors.Wrap(transport.ErrConnClosed, "x"), want: ErrCancelled},
		{desc: "eof", err: io.ErrUnexpectedEOF, want: ErrUnexpectedEOF},
		{desc: "malformed head", err: errors.Wrap(wire.ErrMalformedStatusLine, "x"), want: ErrProtocol},
		{desc: "framing conflict", err: wire.ErrConflictingFraming, want: ErrProtocol},
		{desc: "head too large", err: wire.ErrHeadTooLarge, want: ErrProtocol},
		{desc: "anything else", err: errors.New("weird"), want: ErrIO},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.ErrorIs(t, classifyExchangeErr(context.Background(), tc.err), tc.want)
		})
	}
}

func TestClassifyExchangeErrContext(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, classifyExchangeErr(cancelled, errors.New("x")), ErrCancelled)

	expired, cancel2 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel2()
	assert.ErrorIs(t, classifyExchangeErr(expired, errors.New("x")), ErrTimeout)
}

func TestClassifyConnectErr(t *testing.T) {
	assert.ErrorIs(t,
		classifyConnectErr(context.Background(), errors.Wrap(transport.ErrTLSHandshake, "x")),
		ErrTLSHandshake,
	)
	assert.ErrorIs(t,
		classifyConnectErr(context.Background(), errors.New("refused")),
		ErrConnectFailed,
	)
	assert.NoError(t, classifyConnectErr(context.Background(), nil))
}

func TestRedirectErrorMatching(t *testing.T) {
	err := error(&RedirectError{Kind: ErrTooManyRedirects, Location: "/x"})

	assert.ErrorIs(t, err, ErrTooManyRedirects)
	assert.NotErrorIs(t, err, ErrForbiddenRedirect)

	var re *RedirectError
	assert.ErrorAs(t, err, &re)
	assert.Contains(t, err.Error(), "/x")
}
