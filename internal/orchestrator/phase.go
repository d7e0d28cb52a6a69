package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"devstack/pkg/logging"
)

// Phase is the orchestrator's position within one operation.
type Phase string

const (
	PhaseIdle       Phase = "Idle"
	PhaseResolving  Phase = "Resolving"
	PhaseValidating Phase = "Validating"
	PhaseScheduling Phase = "Scheduling"
	PhaseReporting  Phase = "Reporting"
	PhaseTerminal   Phase = "Terminal"
)

// nextPhases lists the legal successors of each phase. Every path to
// Scheduling passes through Validating; any phase may fail to Terminal.
var nextPhases = map[Phase][]Phase{
	PhaseIdle:       {PhaseResolving},
	PhaseResolving:  {PhaseValidating, PhaseTerminal},
	PhaseValidating: {PhaseScheduling, PhaseReporting, PhaseTerminal},
	PhaseScheduling: {PhaseReporting, PhaseTerminal},
	PhaseReporting:  {PhaseTerminal},
	PhaseTerminal:   {PhaseResolving},
}

// ErrBusy is returned when an operation is started while another runs.
var ErrBusy = errors.New("another operation is in progress")

// PhaseChange is published to subscribers on every phase transition.
type PhaseChange struct {
	Operation string
	From      Phase
	To        Phase
	Err       error
	Timestamp time.Time
}

func (o *Orchestrator) setPhase(op string, to Phase, err error) error {
	o.mu.Lock()
	from := o.phase
	legal := false
	for _, p := range nextPhases[from] {
		if p == to {
			legal = true
			break
		}
	}
	if !legal {
		o.mu.Unlock()
		return fmt.Errorf("illegal phase transition %s -> %s", from, to)
	}
	o.phase = to
	subscribers := make([]chan<- PhaseChange, len(o.subscribers))
	copy(subscribers, o.subscribers)
	o.mu.Unlock()

	logging.Debug("Orchestrator", "%s: %s -> %s", op, from, to)

	change := PhaseChange{Operation: op, From: from, To: to, Err: err, Timestamp: time.Now()}
	for _, subscriber := range subscribers {
		select {
		case subscriber <- change:
		default:
			// Don't block if subscriber can't receive immediately
			logging.Debug("Orchestrator", "Subscriber blocked, skipping phase change %s", to)
		}
	}
	return nil
}

// begin starts an operation from Idle or Terminal.
func (o *Orchestrator) begin(op string) error {
	o.mu.Lock()
	p := o.phase
	o.mu.Unlock()
	if p != PhaseIdle && p != PhaseTerminal {
		return ErrBusy
	}
	return o.setPhase(op, PhaseResolving, nil)
}

// finish moves to Terminal and passes err through.
func (o *Orchestrator) finish(op string, err error) error {
	if perr := o.setPhase(op, PhaseTerminal, err); perr != nil {
		logging.Error("Orchestrator", perr, "Failed to finish %s", op)
	}
	return err
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// SubscribeToPhaseChanges returns a channel receiving every phase change.
// Slow subscribers miss events rather than block the orchestrator.
func (o *Orchestrator) SubscribeToPhaseChanges() <-chan PhaseChange {
	ch := make(chan PhaseChange, 100)
	o.mu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.mu.Unlock()
	return ch
}
