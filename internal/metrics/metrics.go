// Package metrics provides lightweight, lock-free counters for tracking
// probe activity across every run served by one process.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a connprobe process.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	runsActive      atomic.Int64
	runsTotal       atomic.Int64
	unknownModes    atomic.Int64
	checksOK        atomic.Int64
	checksNG        atomic.Int64
	checksCancelled atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	perKind      map[string]*kindCounts
	lastFailure  time.Time
	lastFailMsg  string
	lastRunStart time.Time
}

type kindCounts struct {
	ok, ng int64
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now(), perKind: make(map[string]*kindCounts)}
}

// ── Run metrics ──────────────────────────────────────────────────────

// RunStarted increments both the active and total run counters.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.runsActive.Add(1)
	c.runsTotal.Add(1)
	c.mu.Lock()
	c.lastRunStart = time.Now()
	c.mu.Unlock()
}

// RunFinished decrements the active run counter.
func (c *Collector) RunFinished() {
	if c == nil {
		return
	}
	c.runsActive.Add(-1)
}

// UnknownMode records a run request for a mode absent from the registry.
func (c *Collector) UnknownMode() {
	if c == nil {
		return
	}
	c.unknownModes.Add(1)
}

// ActiveRuns returns the number of runs in flight.
func (c *Collector) ActiveRuns() int64 {
	if c == nil {
		return 0
	}
	return c.runsActive.Load()
}

// TotalRuns returns the lifetime run count.
func (c *Collector) TotalRuns() int64 {
	if c == nil {
		return 0
	}
	return c.runsTotal.Load()
}

// ── Check metrics ────────────────────────────────────────────────────

// CheckPassed records an OK verdict for a check of the given kind.
func (c *Collector) CheckPassed(kind string) {
	if c == nil {
		return
	}
	c.checksOK.Add(1)
	c.mu.Lock()
	c.kind(kind).ok++
	c.mu.Unlock()
}

// CheckFailed records an NG verdict and remembers its description.
func (c *Collector) CheckFailed(kind, msg string) {
	if c == nil {
		return
	}
	c.checksNG.Add(1)
	c.mu.Lock()
	c.kind(kind).ng++
	c.lastFailure = time.Now()
	c.lastFailMsg = msg
	c.mu.Unlock()
}

// CheckCancelled records a check skipped because its run was cancelled.
func (c *Collector) CheckCancelled() {
	if c == nil {
		return
	}
	c.checksCancelled.Add(1)
}

// ChecksOK returns the total number of OK verdicts.
func (c *Collector) ChecksOK() int64 {
	if c == nil {
		return 0
	}
	return c.checksOK.Load()
}

// ChecksNG returns the total number of NG verdicts.
func (c *Collector) ChecksNG() int64 {
	if c == nil {
		return 0
	}
	return c.checksNG.Load()
}

// kind must be called with mu held.
func (c *Collector) kind(name string) *kindCounts {
	k, ok := c.perKind[name]
	if !ok {
		k = &kindCounts{}
		c.perKind[name] = k
	}
	return k
}

// ── Snapshot ─────────────────────────────────────────────────────────

// KindSnapshot holds per-check-kind verdict counts.
type KindSnapshot struct {
	OK int64 `json:"ok"`
	NG int64 `json:"ng"`
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime          string                  `json:"uptime"`
	RunsActive      int64                   `json:"runs_active"`
	RunsTotal       int64                   `json:"runs_total"`
	UnknownModes    int64                   `json:"unknown_modes"`
	ChecksOK        int64                   `json:"checks_ok"`
	ChecksNG        int64                   `json:"checks_ng"`
	ChecksCancelled int64                   `json:"checks_cancelled"`
	ByKind          map[string]KindSnapshot `json:"by_kind,omitempty"`
	LastRunStart    string                  `json:"last_run_start,omitempty"`
	LastFailure     string                  `json:"last_failure,omitempty"`
	LastFailureMsg  string                  `json:"last_failure_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		RunsActive:      c.runsActive.Load(),
		RunsTotal:       c.runsTotal.Load(),
		UnknownModes:    c.unknownModes.Load(),
		ChecksOK:        c.checksOK.Load(),
		ChecksNG:        c.checksNG.Load(),
		ChecksCancelled: c.checksCancelled.Load(),
	}
	if len(c.perKind) > 0 {
		s.ByKind = make(map[string]KindSnapshot, len(c.perKind))
		for name, k := range c.perKind {
			s.ByKind[name] = KindSnapshot{OK: k.ok, NG: k.ng}
		}
	}
	if !c.lastRunStart.IsZero() {
		s.LastRunStart = c.lastRunStart.Format(time.RFC3339)
	}
	if !c.lastFailure.IsZero() {
		s.LastFailure = c.lastFailure.Format(time.RFC3339)
		s.LastFailureMsg = c.lastFailMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
