// Package probe implements the three check primitives: TCP connect,
// ping and local port listening state.
//
// Every check writes an announce line, zero or more evidence lines and
// exactly one tagged verdict to the sink, then returns the verdict.
// Expected failures (refusal, timeout, resolution, missing tools) are
// verdicts, never errors.  Checks ignore Emit errors; the caller owns
// the sink and watches it.
package probe

import (
	"context"
	"fmt"
	"time"

	perr "connprobe/internal/errors"
	"connprobe/internal/sink"
	"connprobe/internal/topology"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 3 * time.Second

// Checker runs one kind of check.
type Checker interface {
	Check(ctx context.Context, out sink.Sink, c topology.Check) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, out sink.Sink, c topology.Check) bool

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, out sink.Sink, c topology.Check) bool {
	return f(ctx, out, c)
}

// ── Line helpers ─────────────────────────────────────────────────────

func announce(out sink.Sink, format string, args ...interface{}) {
	_ = out.Emit(sink.Line{Text: "  - " + fmt.Sprintf(format, args...)})
}

func evidence(out sink.Sink, format string, args ...interface{}) {
	_ = out.Emit(sink.Line{Text: "     " + fmt.Sprintf(format, args...)})
}

func pass(out sink.Sink, format string, args ...interface{}) bool {
	_ = out.Emit(sink.Line{Text: "    [ OK ] " + fmt.Sprintf(format, args...), Status: sink.OK})
	return true
}

func fail(out sink.Sink, format string, args ...interface{}) bool {
	_ = out.Emit(sink.Line{Text: "    [ NG ] " + fmt.Sprintf(format, args...), Status: sink.NG})
	return false
}

// failErr reports err as the verdict, using the reason sentence when
// the error is classified and the raw message otherwise.
func failErr(out sink.Sink, err error) bool {
	reason := perr.Classify(err)
	if reason == perr.ReasonOther {
		return fail(out, "%s (%v)", reason.Describe(), err)
	}
	if reason == perr.ReasonInvalidParam {
		return fail(out, "%s %v", reason.Describe(), err)
	}
	return fail(out, "%s", reason.Describe())
}

// Announce writes the line a check opens with.  The orchestrator uses
// it for checks it never starts.
func Announce(out sink.Sink, c topology.Check) {
	switch c.Kind {
	case topology.KindLocalPort:
		announce(out, "Checking that local port %s is listening ...", c.Target())
	case topology.KindPing:
		announce(out, "Pinging %s ...", c.Target())
	default:
		announce(out, "Connecting to %s (TCP) ...", c.Target())
	}
}

// Skip reports c as NG without running it.
func Skip(out sink.Sink, c topology.Check, err error) bool {
	Announce(out, c)
	evidence(out, "Not started: %v", err)
	return failErr(out, err)
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}
