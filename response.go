package requests

import (
	"encoding/json"
	"net/url"

	"github.com/pkg/errors"
)

// ResponseHead is the decoded head of one response: status, headers and
// the URL that produced it.
type ResponseHead struct {
	URL     *url.URL
	Status  int
	Reason  string
	Headers Headers
}

// Location returns the Location header, if present.
func (h *ResponseHead) Location() (string, bool) {
	return h.Headers.Get("Location")
}

// IsRedirect reports whether the status asks the client to re-request
// elsewhere.
func (h *ResponseHead) IsRedirect() bool {
	switch h.Status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// Response is a fully buffered response. History holds the head of
// every redirect hop that led here, oldest first.
type Response struct {
	ResponseHead

	Body    []byte
	History []ResponseHead
}

// JSON decodes the buffered body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(ErrDecode, err.Error())
	}
	return nil
}

// String returns the buffered body as text.
func (r *Response) String() string { return string(r.Body) }
