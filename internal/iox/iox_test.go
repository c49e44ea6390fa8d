package iox

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedReader(t *testing.T) {
	r := LimitReader(strings.NewReader("hello world"), 5)

	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	n, err := r.Read(make([]byte, 1))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCountingReader(t *testing.T) {
	c := &CountingReader{R: bytes.NewReader([]byte("abcdef"))}

	_, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), c.N)
}

func TestDiscardLimit(t *testing.T) {
	testcases := []struct {
		desc    string
		input   string
		limit   uint64
		drained bool
	}{
		{desc: "shorter than limit", input: "abc", limit: 10, drained: true},
		{desc: "exactly limit", input: "abcde", limit: 5, drained: true},
		{desc: "longer than limit", input: "abcdef", limit: 5, drained: false},
		{desc: "empty", input: "", limit: 5, drained: true},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			drained, err := DiscardLimit(strings.NewReader(tc.input), tc.limit)
			require.NoError(t, err)
			assert.Equal(t, tc.drained, drained)
		})
	}
}
