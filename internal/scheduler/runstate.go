package scheduler

import (
	"fmt"
	"sync"
	"time"

	"devstack/internal/dependency"
)

// Status is the per-unit state within one run.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusStarting Status = "Starting"
	StatusReady    Status = "Ready"
	StatusFailed   Status = "Failed"
	StatusSkipped  Status = "Skipped"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed || s == StatusSkipped
}

// allowed lists the only legal transitions.
var allowed = map[Status][]Status{
	StatusPending:  {StatusStarting, StatusSkipped},
	StatusStarting: {StatusReady, StatusFailed},
}

func canTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for a transition outside the state machine.
type TransitionError struct {
	Unit dependency.UnitID
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("unit %s: illegal transition %s -> %s", e.Unit, e.From, e.To)
}

// UnitState is a snapshot of one unit's progress.
type UnitState struct {
	ID         dependency.UnitID
	Stage      int
	Status     Status
	Attempts   int
	Reason     string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Event describes one state change.
type Event struct {
	Unit     dependency.UnitID
	Stage    int
	From     Status
	To       Status
	Attempts int
	Reason   string
	Err      error
}

// Observer receives every state change. It is called from unit goroutines
// and must be safe for concurrent use.
type Observer func(Event)

// Update carries the optional details recorded with a transition.
type Update struct {
	Attempts int
	Reason   string
	Err      error
}

// RunState tracks every unit of one run. It is the only mutable structure
// shared between unit goroutines and the scheduler.
type RunState struct {
	mu       sync.Mutex
	units    map[dependency.UnitID]*UnitState
	order    []dependency.UnitID
	now      func() time.Time
	observer Observer
}

// NewRunState creates a state with every unit of stages Pending.
func NewRunState(stages []dependency.Stage, observer Observer) *RunState {
	rs := &RunState{
		units:    map[dependency.UnitID]*UnitState{},
		now:      time.Now,
		observer: observer,
	}
	for i, stage := range stages {
		for _, id := range stage {
			rs.units[id] = &UnitState{ID: id, Stage: i, Status: StatusPending}
			rs.order = append(rs.order, id)
		}
	}
	return rs
}

// Transition moves id to status to. Terminal statuses never change and only
// the transitions Pending->Starting, Pending->Skipped, Starting->Ready and
// Starting->Failed are accepted.
func (r *RunState) Transition(id dependency.UnitID, to Status, u Update) error {
	r.mu.Lock()
	st, ok := r.units[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown unit %s", id)
	}
	from := st.Status
	if !canTransition(from, to) {
		r.mu.Unlock()
		return &TransitionError{Unit: id, From: from, To: to}
	}

	st.Status = to
	if u.Attempts > 0 {
		st.Attempts = u.Attempts
	}
	if u.Reason != "" {
		st.Reason = u.Reason
	}
	if u.Err != nil {
		st.Err = u.Err
	}
	now := r.now()
	if to == StatusStarting {
		st.StartedAt = now
	}
	if to.Terminal() {
		st.FinishedAt = now
	}
	ev := Event{Unit: id, Stage: st.Stage, From: from, To: to, Attempts: st.Attempts, Reason: st.Reason, Err: st.Err}
	observer := r.observer
	r.mu.Unlock()

	// Call the observer outside of the lock to avoid deadlocks
	if observer != nil {
		observer(ev)
	}
	return nil
}

// Get returns a snapshot of id.
func (r *RunState) Get(id dependency.UnitID) (UnitState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.units[id]
	if !ok {
		return UnitState{}, false
	}
	return *st, true
}

// Status returns the current status of id, or "" for unknown units.
func (r *RunState) Status(id dependency.UnitID) Status {
	st, _ := r.Get(id)
	return st.Status
}

// All returns snapshots in stage order.
func (r *RunState) All() []UnitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UnitState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.units[id])
	}
	return out
}

// Pending returns the units that have not left Pending, in stage order.
func (r *RunState) Pending() []dependency.UnitID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dependency.UnitID
	for _, id := range r.order {
		if r.units[id].Status == StatusPending {
			out = append(out, id)
		}
	}
	return out
}
