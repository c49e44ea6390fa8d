package requests

import (
	"testing"

	"github.com/fpelliccioni/requests/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalFieldName(t *testing.T) {
	testcases := []struct {
		in   string
		want string
	}{
		{in: "content-type", want: "Content-Type"},
		{in: "CONTENT-LENGTH", want: "Content-Length"},
		{in: "x-my-header", want: "X-My-Header"},
		{in: "Host", want: "Host"},
	}

	for _, tc := range testcases {
		assert.Equal(t, tc.want, CanonicalFieldName(tc.in))
	}
}

func TestHeadersAccess(t *testing.T) {
	h := NewHeaders(map[string][]string{
		"content-type": {"application/json"},
	})

	ct, ok := h.Get("Content-Type")
	require.True(t, ok)
	assert.Equal(t, "application/json", ct)

	_, ok = h.Get("Missing")
	assert.False(t, ok)

	h.Set("X-One", "a")
	h.Set("x-one", "b")
	assert.Equal(t, []string{"b"}, h.Values("X-One"))

	h.Add("Set-Cookie", "a=1")
	h.Add("set-cookie", "b=2")
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))

	h.Del("X-ONE")
	_, ok = h.Get("X-One")
	assert.False(t, ok)
}

func TestHeadersClone(t *testing.T) {
	h := NewHeaders(map[string][]string{"A": {"1"}})
	clone := h.Clone()

	clone.Set("A", "2")
	v, _ := h.Get("A")
	assert.Equal(t, "1", v)

	var nilHeaders Headers
	assert.NotNil(t, nilHeaders.Clone())
}

func TestHeadersFields(t *testing.T) {
	h := NewHeaders(map[string][]string{
		"b-second": {"2"},
		"a-first":  {"1a", "1b"},
	})

	assert.Equal(t, []wire.Field{
		{Name: "A-First", Value: "1a"},
		{Name: "A-First", Value: "1b"},
		{Name: "B-Second", Value: "2"},
	}, h.fields())
}

func TestHeadersFrom(t *testing.T) {
	h := headersFrom([]wire.Field{
		{Name: "set-cookie", Value: "a=1"},
		{Name: "Set-Cookie", Value: "b=2"},
	})

	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
}
