// Package sink defines the progress-line stream that the probe engine
// writes to, and the implementations the CLI and server hand to it.
//
// A Sink is append-only: lines arrive in emission order and are never
// edited afterwards.  Implementations decide what "consuming" a line
// means (render it, keep it, publish it, drop it).
package sink

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Status tags a line so a renderer can colour it.
type Status int

const (
	Plain Status = iota
	OK
	NG
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case NG:
		return "ng"
	default:
		return "plain"
	}
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON.
func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "ok":
		*s = OK
	case "ng":
		*s = NG
	case "plain", "":
		*s = Plain
	default:
		return fmt.Errorf("unknown line status %q", name)
	}
	return nil
}

// Line is one unit of progress output.
type Line struct {
	Text   string `json:"text"`
	Status Status `json:"status"`
}

// Tagged reports whether the line carries an OK/NG verdict.
func (l Line) Tagged() bool { return l.Status != Plain }

// Sink receives progress lines.  Emit must not retain l beyond the call
// unless it copies it; an error means the sink is no longer usable.
type Sink interface {
	Emit(l Line) error
}

// Func adapts a plain function to the Sink interface.
type Func func(Line) error

// Emit calls f(l).
func (f Func) Emit(l Line) error { return f(l) }

// Discard drops every line.
var Discard Sink = Func(func(Line) error { return nil })

// ── Collector ────────────────────────────────────────────────────────

// Collector keeps every line in memory.  It is what tests substitute
// for a real renderer and what the log writer reads back from.
type Collector struct {
	mu    sync.Mutex
	lines []Line
}

// Emit appends l.
func (c *Collector) Emit(l Line) error {
	c.mu.Lock()
	c.lines = append(c.lines, l)
	c.mu.Unlock()
	return nil
}

// Lines returns a copy of the collected lines.
func (c *Collector) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Tagged returns only the OK/NG lines, in order.
func (c *Collector) Tagged() []Line {
	var out []Line
	for _, l := range c.Lines() {
		if l.Tagged() {
			out = append(out, l)
		}
	}
	return out
}

// Text joins all lines with newlines.
func (c *Collector) Text() string {
	lines := c.Lines()
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// ── Fan-out ──────────────────────────────────────────────────────────

// Multi emits every line to each sink in order.  The first failing
// sink stops the fan-out and its error is returned.
func Multi(sinks ...Sink) Sink {
	return Func(func(l Line) error {
		for _, s := range sinks {
			if err := s.Emit(l); err != nil {
				return err
			}
		}
		return nil
	})
}

// BestEffort forwards to s but never reports a failure; onErr, when
// set, is told about each one.  Use it for secondary outputs that must
// not stop a run.
func BestEffort(s Sink, onErr func(error)) Sink {
	return Func(func(l Line) error {
		if err := s.Emit(l); err != nil && onErr != nil {
			onErr(err)
		}
		return nil
	})
}
