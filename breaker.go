package requests

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings enables a circuit breaker per host-key. After enough
// failed exchanges the breaker opens and requests to that host fail
// fast with ErrConnectFailed until the cool-down passes.
type BreakerSettings struct {
	gobreaker.Settings

	// TripOnStatus counts a response status as a failure. Nil means
	// 5xx responses trip the breaker.
	TripOnStatus func(status int) bool
}

type breakerSet struct {
	settings BreakerSettings

	mu sync.Mutex
	m  map[hostKey]*gobreaker.CircuitBreaker[*Stream]
}

func newBreakerSet(settings BreakerSettings) *breakerSet {
	if settings.TripOnStatus == nil {
		settings.TripOnStatus = func(status int) bool { return status >= 500 }
	}
	return &breakerSet{
		settings: settings,
		m:        make(map[hostKey]*gobreaker.CircuitBreaker[*Stream]),
	}
}

func (b *breakerSet) forKey(key hostKey) *gobreaker.CircuitBreaker[*Stream] {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.m[key]
	if !ok {
		settings := b.settings.Settings
		if settings.Name == "" {
			settings.Name = key.String()
		}
		cb = gobreaker.NewCircuitBreaker[*Stream](settings)
		b.m[key] = cb
	}

	return cb
}

// errBadStatus trips the breaker on server errors without failing the
// caller, which still gets the stream.
var errBadStatus = errors.New("server error status")

func (b *breakerSet) execute(key hostKey, do func() (*Stream, error)) (*Stream, error) {
	st, err := b.forKey(key).Execute(func() (*Stream, error) {
		st, err := do()
		if err != nil {
			return nil, err
		}
		if b.settings.TripOnStatus(st.Head.Status) {
			return st, errBadStatus
		}
		return st, nil
	})

	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, errBadStatus):
		return st, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, errors.Wrap(ErrConnectFailed, err.Error())
	default:
		return nil, err
	}
}
