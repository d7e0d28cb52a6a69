package scheduler

import (
	"fmt"
	"strings"
	"time"

	"devstack/internal/dependency"
)

// UnitResult is a unit's final outcome within a run.
type UnitResult struct {
	ID        string        `json:"id" yaml:"id"`
	Stage     int           `json:"stage" yaml:"stage"`
	Status    Status        `json:"status" yaml:"status"`
	Attempts  int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Reason    string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Readiness string        `json:"readiness,omitempty" yaml:"readiness,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Report is the aggregate result of a run.
type Report struct {
	RunID     string        `json:"runId" yaml:"runId"`
	Strict    bool          `json:"strict" yaml:"strict"`
	Aborted   bool          `json:"aborted" yaml:"aborted"`
	Canceled  bool          `json:"canceled" yaml:"canceled"`
	StartedAt time.Time     `json:"startedAt" yaml:"startedAt"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Stages    [][]string    `json:"stages" yaml:"stages"`
	Units     []UnitResult  `json:"units" yaml:"units"`
}

// Unit returns the result for id.
func (r *Report) Unit(id string) (UnitResult, bool) {
	for _, u := range r.Units {
		if u.ID == id {
			return u, true
		}
	}
	return UnitResult{}, false
}

// Failed returns the units that ended Failed.
func (r *Report) Failed() []UnitResult {
	var out []UnitResult
	for _, u := range r.Units {
		if u.Status == StatusFailed {
			out = append(out, u)
		}
	}
	return out
}

// Counts tallies units per status.
func (r *Report) Counts() map[Status]int {
	counts := map[Status]int{}
	for _, u := range r.Units {
		counts[u.Status]++
	}
	return counts
}

// OK reports a run in which nothing failed and nothing was interrupted.
// Units skipped by a capability gate do not make a run fail.
func (r *Report) OK() bool {
	return !r.Canceled && !r.Aborted && len(r.Failed()) == 0
}

// Summary renders a one-line tally such as "5 ready, 1 failed, 2 skipped".
func (r *Report) Summary() string {
	c := r.Counts()
	parts := []string{fmt.Sprintf("%d ready", c[StatusReady])}
	if n := c[StatusFailed]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", n))
	}
	if n := c[StatusSkipped]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", n))
	}
	s := strings.Join(parts, ", ")
	switch {
	case r.Canceled:
		s += " (canceled)"
	case r.Aborted:
		s += " (aborted)"
	}
	return s
}

// Err returns a *UnitFailedError when a strict run had failures, nil
// otherwise. Non-strict runs report failures as data only.
func (r *Report) Err() error {
	if !r.Strict {
		return nil
	}
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	ids := make([]string, len(failed))
	for i, u := range failed {
		ids[i] = u.ID
	}
	return &UnitFailedError{Units: ids}
}

// UnitFailedError reports that a strict run ended with failed units.
type UnitFailedError struct {
	Units []string
}

func (e *UnitFailedError) Error() string {
	return fmt.Sprintf("strict mode: %d unit(s) failed: %s", len(e.Units), strings.Join(e.Units, ", "))
}

func stageNames(stages []dependency.Stage) [][]string {
	out := make([][]string, len(stages))
	for i, s := range stages {
		out[i] = make([]string, len(s))
		for j, id := range s {
			out[i][j] = string(id)
		}
	}
	return out
}
