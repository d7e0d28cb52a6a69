package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"

	"devstack/internal/orchestrator"
	"devstack/internal/scheduler"
)

var phaseText = map[orchestrator.Phase]string{
	orchestrator.PhaseResolving:  "Resolving configuration",
	orchestrator.PhaseValidating: "Validating stack",
	orchestrator.PhaseScheduling: "Starting units",
	orchestrator.PhaseReporting:  "Collecting results",
}

// Progress drives a spinner from orchestrator phase changes and scheduler
// events. A disabled Progress only tracks state.
type Progress struct {
	spinner *spinner.Spinner

	mu       sync.Mutex
	phase    orchestrator.Phase
	stage    int
	starting map[string]bool
	done     chan struct{}
}

// NewProgress creates a spinner writing to out. Pass enabled=false for
// quiet or machine-readable output.
func NewProgress(out io.Writer, enabled bool) *Progress {
	p := &Progress{starting: map[string]bool{}}
	if enabled {
		p.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	}
	return p
}

// Follow consumes phase changes until the channel closes or Stop is
// called. A second call replaces the channel being followed.
func (p *Progress) Follow(ch <-chan orchestrator.PhaseChange) {
	p.mu.Lock()
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			case change, ok := <-ch:
				if !ok {
					return
				}
				p.onPhase(change)
			}
		}
	}()
}

func (p *Progress) onPhase(change orchestrator.PhaseChange) {
	p.mu.Lock()
	p.phase = change.To
	if change.To != orchestrator.PhaseScheduling {
		p.starting = map[string]bool{}
	}
	suffix := p.suffixLocked()
	p.mu.Unlock()

	if p.spinner == nil {
		return
	}
	if change.To == orchestrator.PhaseTerminal {
		p.spinner.Stop()
		return
	}
	p.spinner.Lock()
	p.spinner.Suffix = " " + suffix
	p.spinner.Unlock()
	if !p.spinner.Active() {
		p.spinner.Start()
	}
}

// Observe is a scheduler.Observer that lists the units currently waiting
// for readiness.
func (p *Progress) Observe(e scheduler.Event) {
	p.mu.Lock()
	id := string(e.Unit)
	switch e.To {
	case scheduler.StatusStarting:
		p.starting[id] = true
		p.stage = e.Stage
	default:
		delete(p.starting, id)
	}
	suffix := p.suffixLocked()
	p.mu.Unlock()

	if p.spinner != nil {
		p.spinner.Lock()
		p.spinner.Suffix = " " + suffix
		p.spinner.Unlock()
	}
}

// Suffix returns the text shown next to the spinner.
func (p *Progress) Suffix() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suffixLocked()
}

func (p *Progress) suffixLocked() string {
	text := phaseText[p.phase]
	if p.phase != orchestrator.PhaseScheduling || len(p.starting) == 0 {
		return text
	}
	units := make([]string, 0, len(p.starting))
	for id := range p.starting {
		units = append(units, id)
	}
	sort.Strings(units)
	return fmt.Sprintf("Stage %d: waiting for %s", p.stage+1, strings.Join(units, ", "))
}

// Stop halts the spinner and stops following phase changes.
func (p *Progress) Stop() {
	p.mu.Lock()
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.mu.Unlock()
	if p.spinner != nil {
		p.spinner.Stop()
	}
}
