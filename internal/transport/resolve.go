package transport

import (
	"context"
	"fmt"
	"net"

	perr "connprobe/internal/errors"
)

// Resolver looks up addresses restricted to a family.
type Resolver interface {
	LookupFamily(ctx context.Context, host string, family Family) ([]net.IP, error)
}

// SystemResolver resolves through the operating system's resolver so
// results match what the probed services themselves would see.
type SystemResolver struct {
	R *net.Resolver // nil uses net.DefaultResolver
}

// LookupFamily returns every address of host in the requested family.
// An empty result is reported as ErrNoAddress rather than an empty
// slice.
func (s SystemResolver) LookupFamily(ctx context.Context, host string, family Family) ([]net.IP, error) {
	r := s.R
	if r == nil {
		r = net.DefaultResolver
	}

	ips, err := r.LookupIP(ctx, family.Network("ip"), host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%s (family %s): %w", host, family, perr.ErrNoAddress)
	}
	return ips, nil
}

// Preferred picks the address a single-target tool should use: the
// first IPv4 address for FamilyAny, otherwise the first address.
func Preferred(ips []net.IP, family Family) net.IP {
	if len(ips) == 0 {
		return nil
	}
	if family == FamilyAny {
		for _, ip := range ips {
			if ip.To4() != nil {
				return ip
			}
		}
	}
	return ips[0]
}
