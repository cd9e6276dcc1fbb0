// Package core is the orchestration layer.  It drives one mode's checks
// in registry order, narrates them through a sink and returns a
// RunResult.  The builder in this package wires the check primitives
// from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  probe  →  core  →  cmd (CLI) / server (HTTP)
package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	perr "connprobe/internal/errors"
	"connprobe/internal/metrics"
	"connprobe/internal/probe"
	"connprobe/internal/sink"
	"connprobe/internal/topology"
	"connprobe/util"
)

// BannerRule frames the run header.
var BannerRule = strings.Repeat("-", 48)

// Orchestrator runs probe plans.  It holds no per-run state, so one
// instance serves any number of concurrent runs as long as each run
// has its own sink.
type Orchestrator struct {
	Registry *topology.Registry
	Checkers map[topology.Kind]probe.Checker
	Metrics  *metrics.Collector // optional
	Logger   *slog.Logger       // optional
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Run executes mode with params, writing every line to out.  It never
// panics and never returns early because a check failed; the result
// carries an error only for an unknown mode or an unusable sink.
func (o *Orchestrator) Run(ctx context.Context, mode string, params map[string]string, out sink.Sink) RunResult {
	return o.RunWithID(ctx, NewRunID(), mode, params, out)
}

// RunWithID is Run with a caller-chosen run id, for callers that must
// name the run (a log file, a pub/sub channel) before it starts.
func (o *Orchestrator) RunWithID(ctx context.Context, runID, mode string, params map[string]string, out sink.Sink) RunResult {
	res := RunResult{
		RunID:   runID,
		Mode:    mode,
		State:   StateRunning,
		Started: time.Now(),
	}
	log := o.logger().With("run_id", res.RunID, "mode", mode)
	g := &guard{out: out}

	m, err := o.Registry.Resolve(mode)
	if err != nil {
		o.Metrics.UnknownMode()
		log.Warn("unknown mode")
		g.Emit(sink.Line{Text: "[ERROR] unknown mode: " + mode}) //nolint:errcheck
		res.Err = err
		if g.err != nil {
			res.Err = perr.Join(err, fmt.Errorf("%w: %v", perr.ErrSinkUnusable, g.err))
		}
		res.finish()
		return res
	}

	o.Metrics.RunStarted()
	defer o.Metrics.RunFinished()

	res.Title = m.DisplayTitle(params)
	res.Total = m.CheckCount()
	log.Info("run started", "checks", res.Total)

	o.narrate(ctx, g, m, params, &res, log)

	if g.err != nil {
		res.Err = fmt.Errorf("%w: %v", perr.ErrSinkUnusable, g.err)
		log.Error("sink failed, run stopped", "error", g.err)
	}
	res.finish()
	log.Info("run completed",
		"passed", res.Passed, "failed", res.Failed, "cancelled", res.Cancelled,
		"elapsed", res.Duration.Round(time.Millisecond))
	return res
}

// narrate emits the banner, every section and the completion marker.
// It stops at the first sink failure.
func (o *Orchestrator) narrate(ctx context.Context, g *guard, m *topology.Mode, params map[string]string, res *RunResult, log *slog.Logger) {
	for _, text := range []string{BannerRule, "-- " + res.Title + " connectivity check", BannerRule} {
		if g.Emit(sink.Line{Text: text}) != nil {
			return
		}
	}

	for i, sec := range m.Bind(params) {
		if i > 0 && g.Emit(sink.Line{}) != nil {
			return
		}
		if g.Emit(sink.Line{Text: "[" + sec.Title + "]"}) != nil {
			return
		}

		for _, c := range sec.Checks {
			if ctxErr := ctx.Err(); ctxErr != nil {
				probe.Skip(g, c, fmt.Errorf("%w (%v)", perr.ErrCancelled, ctxErr))
				res.Cancelled++
				o.Metrics.CheckCancelled()
			} else if o.runCheck(ctx, g, c, log) {
				res.Passed++
				o.Metrics.CheckPassed(string(c.Kind))
			} else {
				res.Failed++
				o.Metrics.CheckFailed(string(c.Kind), string(c.Kind)+" "+c.Target())
			}
			if g.err != nil {
				return
			}
		}
	}

	status := sink.OK
	marker := "[ OK ]"
	if res.Passed != res.Total {
		status = sink.NG
		marker = "[ NG ]"
	}
	g.Emit(sink.Line{ //nolint:errcheck
		Text:   fmt.Sprintf("%s Check complete: %d/%d checks OK", marker, res.Passed, res.Total),
		Status: status,
	})
}

// runCheck runs one check and guarantees exactly one verdict line,
// including when the checker panics or forgets to report.
func (o *Orchestrator) runCheck(ctx context.Context, g *guard, c topology.Check, log *slog.Logger) (ok bool) {
	checker, found := o.Checkers[c.Kind]
	if !found {
		return probe.Skip(g, c, fmt.Errorf("no checker registered for %q", c.Kind))
	}

	before := g.tagged
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("check panicked", "kind", c.Kind, "target", c.Target(), "panic", r)
			ok = false
			if g.tagged == before {
				g.Emit(sink.Line{Text: fmt.Sprintf("    [ NG ] Check aborted unexpectedly: %v", r), Status: sink.NG}) //nolint:errcheck
			}
			return
		}
		if g.tagged == before {
			if ok {
				g.Emit(sink.Line{Text: "    [ OK ] Check passed.", Status: sink.OK}) //nolint:errcheck
			} else {
				g.Emit(sink.Line{Text: "    [ NG ] Check ended without a verdict.", Status: sink.NG}) //nolint:errcheck
			}
		}
		log.Debug("check finished", "kind", c.Kind, "target", c.Target(), "ok", ok,
			"elapsed", time.Since(start).Round(time.Millisecond))
	}()

	return checker.Check(ctx, g, c)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return util.Discard()
	}
	return o.Logger
}

// guard forwards to the run's sink, remembers the first failure and
// drops every later line.  It is owned by a single run.
type guard struct {
	out    sink.Sink
	err    error
	tagged int
}

func (g *guard) Emit(l sink.Line) error {
	if g.err != nil {
		return g.err
	}
	if err := g.out.Emit(l); err != nil {
		g.err = err
		return err
	}
	if l.Tagged() {
		g.tagged++
	}
	return nil
}
