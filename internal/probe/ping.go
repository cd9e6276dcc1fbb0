package probe

import (
	"context"
	"net"
	"time"

	perr "connprobe/internal/errors"
	"connprobe/internal/sink"
	"connprobe/internal/topology"
	"connprobe/internal/transport"
)

// pingGrace is extra time allowed for an external ping process to
// start and exit on top of its own reply timeout.
const pingGrace = 2 * time.Second

// Reply is what a Pinger observed.
type Reply struct {
	Alive  bool
	Output []string // raw evidence, one entry per line
}

// Pinger sends a single echo request to an already resolved address.
// An error means the ping could not be attempted or did not finish;
// no reply within the timeout is Alive == false with a nil error.
type Pinger interface {
	Ping(ctx context.Context, ip net.IP, timeout time.Duration) (Reply, error)
}

// Ping checks host reachability.  The host is resolved first,
// restricted to the check's family, and the pinger is handed the
// resolved literal so it cannot fall back to another family.
type Ping struct {
	Resolver transport.Resolver
	Pinger   Pinger
	Timeout  time.Duration
}

// Check pings c.Host.
func (p *Ping) Check(ctx context.Context, out sink.Sink, c topology.Check) bool {
	Announce(out, c)
	if c.Err != nil {
		return failErr(out, c.Err)
	}

	timeout := timeoutOr(p.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout+pingGrace)
	defer cancel()

	ips, err := p.Resolver.LookupFamily(ctx, c.Host, c.Family)
	if err != nil {
		evidence(out, "Could not resolve %s (IP family %s): %v", c.Host, c.Family, err)
		return failErr(out, perr.Wrap("resolve", c.Host, asResolution(err)))
	}
	ip := transport.Preferred(ips, c.Family)
	evidence(out, "Resolved %s to %s", c.Host, ip)

	reply, err := p.Pinger.Ping(ctx, ip, timeout)
	if len(reply.Output) > 0 {
		evidence(out, "Ping output:")
		for _, line := range reply.Output {
			evidence(out, " %s", line)
		}
	}
	if err != nil {
		evidence(out, "Error: %v", err)
		return failErr(out, err)
	}
	if !reply.Alive {
		return fail(out, "No reply from %s; the request timed out or failed.", c.Host)
	}
	return pass(out, "Reply received from %s (%s).", c.Host, ip)
}

// asResolution keeps cancellation and deadlines as they are and files
// every other lookup failure under resolution.
func asResolution(err error) error {
	switch perr.Classify(err) {
	case perr.ReasonCancelled, perr.ReasonTimeout, perr.ReasonResolution:
		return err
	}
	return &perr.CheckError{Op: "resolve", Reason: perr.ReasonResolution, Err: err}
}
