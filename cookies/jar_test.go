package cookies

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestMemoryJarStoreCollect(t *testing.T) {
	jar := NewMemoryJar()
	origin := mustParse(t, "http://example.com/login")

	jar.Store(origin, "session=abc123; Path=/")
	jar.Store(origin, "theme=dark; Path=/")

	got := jar.Collect(mustParse(t, "http://example.com/account"))
	assert.ElementsMatch(t, []Cookie{
		{Name: "session", Value: "abc123"},
		{Name: "theme", Value: "dark"},
	}, got)
}

func TestMemoryJarDomainScope(t *testing.T) {
	jar := NewMemoryJar()

	jar.Store(mustParse(t, "http://example.com/"), "a=1")

	assert.Empty(t, jar.Collect(mustParse(t, "http://other.com/")))
	assert.NotEmpty(t, jar.Collect(mustParse(t, "http://example.com/")))
}

func TestMemoryJarUnparsableDropped(t *testing.T) {
	jar := NewMemoryJar()

	jar.Store(mustParse(t, "http://example.com/"), "")
	assert.Empty(t, jar.Collect(mustParse(t, "http://example.com/")))
}

func TestMemoryJarSnapshot(t *testing.T) {
	jar := NewMemoryJar()
	origin := mustParse(t, "http://example.com/")
	jar.Store(origin, "session=abc123; Path=/")

	buf := bytes.NewBuffer(nil)
	require.NoError(t, jar.Save(buf))

	restored := NewMemoryJar()
	require.NoError(t, restored.Load(bytes.NewReader(buf.Bytes())))

	assert.Equal(t,
		[]Cookie{{Name: "session", Value: "abc123"}},
		restored.Collect(origin),
	)
}
