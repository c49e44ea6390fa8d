package requests

import (
	"sync"

	"github.com/fpelliccioni/requests/cookies"
)

var (
	defaultMu      sync.Mutex
	defaultSession *Session
)

// Default returns the process-wide session, creating it on first use
// with DefaultOptions and a fresh memory cookie jar. Prefer passing an
// explicit Session; the default exists as a convenience shim.
func Default() *Session {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSession == nil {
		defaultSession = NewSession(SessionConfig{Jar: cookies.NewMemoryJar()})
	}
	return defaultSession
}

// SetDefault replaces the process-wide session, closing the previous
// one.
func SetDefault(s *Session) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSession != nil {
		_ = defaultSession.Close()
	}
	defaultSession = s
}

// ResetDefault tears the default session down; the next Default call
// builds a fresh one. Intended for tests.
func ResetDefault() {
	SetDefault(nil)
}
