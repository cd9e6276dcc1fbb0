package core

import "time"

// State is the lifecycle stage of a run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// RunResult is the terminal value of one run.  State is always
// StateCompleted once Run returns; Err is set only when the mode is
// unknown or the sink stopped accepting lines.  Individual check
// outcomes are counted but never turn into Err.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Mode      string        `json:"mode"`
	Title     string        `json:"title,omitempty"`
	State     State         `json:"state"`
	Total     int           `json:"total"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration_ns"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}

// AllPassed reports whether every check of the run passed.
func (r RunResult) AllPassed() bool {
	return r.Err == nil && r.Total > 0 && r.Passed == r.Total
}

func (r *RunResult) finish() {
	r.Duration = time.Since(r.Started)
	r.State = StateCompleted
	if r.Err != nil {
		r.Error = r.Err.Error()
	}
}
