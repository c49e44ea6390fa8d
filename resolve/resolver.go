// Package resolve maps a host and scheme onto the ordered list of
// transport endpoints to try.
package resolve

import (
	"context"
	"maps"
	"net"

	"github.com/fpelliccioni/requests/transport"
	"github.com/pkg/errors"
)

var ErrHostNotFound = errors.New("host not found")

// Resolver turns (host, port, tls) into an ordered endpoint list. The
// first endpoint is tried first; later ones are fallbacks on connect
// failure.
type Resolver interface {
	Resolve(ctx context.Context, host string, port uint16, useTLS bool) ([]transport.Endpoint, error)
}

// NetResolver resolves through the operating system / net.Resolver.
type NetResolver struct {
	// R is the underlying resolver. Nil means net.DefaultResolver.
	R *net.Resolver
}

var _ Resolver = (*NetResolver)(nil)

func (nr *NetResolver) Resolve(ctx context.Context, host string, port uint16, useTLS bool) ([]transport.Endpoint, error) {
	if ip := net.ParseIP(host); ip != nil {
		// Already an address; nothing to look up.
		return []transport.Endpoint{{Host: host, Port: port, TLS: useTLS, ServerName: host}}, nil
	}

	r := nr.R
	if r == nil {
		r = net.DefaultResolver
	}

	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup for host(%s) failed", host)
	}
	if len(addrs) == 0 {
		return nil, errors.Wrapf(ErrHostNotFound, "host %q", host)
	}

	eps := make([]transport.Endpoint, 0, len(addrs))
	for _, addr := range addrs {
		eps = append(eps, transport.Endpoint{
			Host:       addr.IP.String(),
			Port:       port,
			TLS:        useTLS,
			ServerName: host,
		})
	}

	return eps, nil
}

// StaticResolver resolves from a fixed host to address-list map.
type StaticResolver struct {
	set map[string][]string
}

var _ Resolver = (*StaticResolver)(nil)

func NewStaticResolver(set map[string][]string) *StaticResolver {
	if set == nil {
		set = make(map[string][]string)
	}
	return &StaticResolver{set: maps.Clone(set)}
}

func (sr *StaticResolver) Resolve(ctx context.Context, host string, port uint16, useTLS bool) ([]transport.Endpoint, error) {
	addrs, ok := sr.set[host]
	if !ok {
		return nil, errors.Wrapf(ErrHostNotFound, "host %q", host)
	}

	eps := make([]transport.Endpoint, 0, len(addrs))
	for _, addr := range addrs {
		eps = append(eps, transport.Endpoint{Host: addr, Port: port, TLS: useTLS, ServerName: host})
	}

	return eps, nil
}

func (sr *StaticResolver) Set(host string, addrs []string) {
	if len(addrs) == 0 {
		return
	}
	sr.set[host] = addrs
}

func (sr *StaticResolver) Del(host string) { delete(sr.set, host) }
