package probe

import (
	"context"
	"time"

	perr "connprobe/internal/errors"
	"connprobe/internal/sink"
	"connprobe/internal/topology"
	"connprobe/internal/transport"
)

// TCP checks that a TCP handshake with host:port completes within
// Timeout.  The connection is closed as soon as it is established.
type TCP struct {
	Dialer  transport.Dialer
	Timeout time.Duration
}

// Check dials c.Target() honouring c.Family.
func (t *TCP) Check(ctx context.Context, out sink.Sink, c topology.Check) bool {
	Announce(out, c)
	if c.Err != nil {
		return failErr(out, c.Err)
	}

	timeout := timeoutOr(t.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := t.Dialer.Dial(ctx, c.Family.Network("tcp"), c.Target())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &perr.CheckError{Op: "dial", Addr: c.Target(), Reason: perr.Classify(ctxErr), Err: err}
		}
		reason := perr.Classify(err)
		if reason == perr.ReasonTimeout {
			evidence(out, "Connection attempt timed out (%s).", timeout)
		}
		evidence(out, "Error code: %s", perr.Code(err))
		return failErr(out, err)
	}
	remote := conn.RemoteAddr()
	conn.Close()

	if remote != nil {
		evidence(out, "Connected to %s", remote)
	}
	return pass(out, "Connection to %s succeeded.", c.Target())
}
