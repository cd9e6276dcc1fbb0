// Package transport provides the dialing and name-resolution seam the
// TCP and ping checks go through.  Everything here honours an IP family
// hint so a check constrained to IPv4 never silently falls back to IPv6
// (and vice versa).
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.  The default
// implementation is TCPDialer; tests substitute their own.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
