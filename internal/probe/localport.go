package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	perr "connprobe/internal/errors"
	"connprobe/internal/sink"
	"connprobe/internal/topology"
)

// Strategy selects how a local port check decides whether a port is
// listening.
type Strategy string

const (
	// StrategyInspect reads the TCP table.  It never touches the port.
	StrategyInspect Strategy = "inspect"
	// StrategyBind tries to listen on the port and treats failure as
	// "occupied".  A service starting at the same moment can lose the
	// race for the port while the test listener is open.
	StrategyBind Strategy = "bind"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyInspect, StrategyBind:
		return Strategy(s), nil
	case "":
		return StrategyInspect, nil
	}
	return "", fmt.Errorf("unknown local port strategy %q (want inspect or bind)", s)
}

// LocalPort checks that a TCP port is in listening state on this host.
type LocalPort struct {
	Strategy Strategy
	Source   ListenerSource // used by StrategyInspect
	Timeout  time.Duration
}

// Check runs the configured strategy against c.Port.
func (l *LocalPort) Check(ctx context.Context, out sink.Sink, c topology.Check) bool {
	Announce(out, c)
	if c.Err != nil {
		return failErr(out, c.Err)
	}
	if l.Strategy == StrategyBind {
		return l.bind(out, c.Port)
	}
	return l.inspect(ctx, out, c.Port)
}

func (l *LocalPort) inspect(ctx context.Context, out sink.Sink, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(l.Timeout))
	defer cancel()

	entries, err := l.Source.Entries(ctx, port)
	if err != nil {
		evidence(out, "Error code: %s", perr.Code(err))
		return fail(out, "Could not read the TCP table (%s). %s (%v)", l.Source.Name(), perr.Classify(err).Describe(), err)
	}

	if len(entries) == 0 {
		evidence(out, "No TCP table entry uses port %d.", port)
		return fail(out, "Port %d is not in use.", port)
	}

	evidence(out, "Matching TCP table entries (%s):", l.Source.Name())
	listening := false
	for _, e := range entries {
		evidence(out, " %s", e)
		if e.Listening() {
			listening = true
		}
	}
	if listening {
		return pass(out, "Port %d is LISTENING.", port)
	}
	return fail(out, "Port %d is in use but not in LISTENING state.", port)
}

// bind opens and immediately closes a listener on the port.
func (l *LocalPort) bind(out sink.Sink, port int) bool {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		evidence(out, "Bind error: %s (%v)", perr.Code(err), err)
		switch perr.Classify(err) {
		case perr.ReasonAddrInUse, perr.ReasonPermission:
			return pass(out, "Port %d is occupied; a listener is presumed to hold it.", port)
		}
		return fail(out, "Could not probe port %d: %v", port, err)
	}
	closeErr := ln.Close()
	evidence(out, "Bind succeeded; test listener closed.")
	if closeErr != nil {
		evidence(out, "Close error: %v", closeErr)
	}
	return fail(out, "Port %d is not in use. Nothing is listening.", port)
}
