package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"devstack/internal/capability"
	"devstack/internal/dependency"
	"devstack/internal/health"
	"devstack/pkg/logging"
)

const subsystem = "Scheduler"

// Launcher brings a unit's services up. containerizer.ComposeRuntime
// satisfies it.
type Launcher interface {
	Up(ctx context.Context, services []string) error
}

// Prober waits for a unit to become ready. *health.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, unit string, check health.Check) health.Result
}

// Options configures a Scheduler.
type Options struct {
	// Strict stops the run after the stage in which a unit failed.
	Strict bool

	// Parallel caps concurrently starting units within a stage. Zero means
	// no limit.
	Parallel int

	Observer Observer
}

// Scheduler runs a validated graph stage by stage.
type Scheduler struct {
	launcher Launcher
	prober   Prober
	opts     Options
}

// New creates a scheduler.
func New(launcher Launcher, prober Prober, opts Options) *Scheduler {
	return &Scheduler{launcher: launcher, prober: prober, opts: opts}
}

// run holds the state of one Run call.
type run struct {
	id      string
	graph   *dependency.Graph
	caps    capability.Capabilities
	state   *RunState
	log     logging.Logger
	mu      sync.Mutex
	aborted bool
	cause   string
}

func (r *run) abort(cause string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted {
		return false
	}
	r.aborted = true
	r.cause = cause
	return true
}

func (r *run) abortCause() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted, r.cause
}

// Run executes every stage of g in order. Within a stage, gated-in units
// start concurrently and the scheduler waits until each is Ready or Failed
// before the next stage. A unit whose prerequisite did not become Ready is
// Skipped, as is a unit whose capability gate is not met.
//
// Run only returns an error when the graph is invalid; unit failures are
// reported in the Report. On cancellation no new unit is launched, units
// in flight finish their current probe attempt and end Failed, and units
// never launched end Skipped.
func (s *Scheduler) Run(ctx context.Context, g *dependency.Graph, caps capability.Capabilities) (*Report, error) {
	stages, err := g.ComputeStages()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	r := &run{
		id:    uuid.NewString(),
		graph: g,
		caps:  caps,
		state: NewRunState(stages, s.opts.Observer),
	}
	r.log = logging.For(subsystem).With("run", r.id[:8])
	r.log.Info("Starting run with %d unit(s) in %d stage(s), strict=%t", g.Len(), len(stages), s.opts.Strict)

	for i, stage := range stages {
		if ctx.Err() != nil {
			break
		}
		if aborted, _ := r.abortCause(); aborted {
			break
		}
		r.log.Info("Stage %d/%d: %s", i+1, len(stages), stage)
		s.runStage(ctx, r, stage)
	}

	s.skipRemaining(ctx, r)

	report := s.buildReport(r, stages, start)
	report.Canceled = ctx.Err() != nil
	report.Aborted, _ = r.abortCause()
	r.log.Info("Run finished in %s: %s", report.Duration.Round(time.Millisecond), report.Summary())
	return report, nil
}

// runStage launches every runnable unit of stage and waits for all of them.
// A strict failure does not interrupt siblings already in the stage; the
// abort takes effect at the next stage barrier.
func (s *Scheduler) runStage(ctx context.Context, r *run, stage dependency.Stage) {
	var launch []dependency.Unit
	for _, id := range stage {
		unit, _ := r.graph.Get(id)
		if reason := s.blockedBy(r, unit); reason != "" {
			s.transition(r, id, StatusSkipped, Update{Reason: reason})
			continue
		}
		if missing := r.caps.Missing(unit.Requires); len(missing) > 0 {
			s.transition(r, id, StatusSkipped, Update{Reason: "requires " + strings.Join(missing, ", ")})
			continue
		}
		launch = append(launch, unit)
	}

	var eg errgroup.Group
	if s.opts.Parallel > 0 {
		eg.SetLimit(s.opts.Parallel)
	}
	for _, unit := range launch {
		eg.Go(func() error {
			if !s.runUnit(ctx, r, unit) && s.opts.Strict {
				if r.abort(fmt.Sprintf("unit %s failed", unit.ID)) {
					r.log.Warn("Strict mode: %s failed, later stages will be skipped", unit.ID)
				}
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// blockedBy returns why unit cannot start, or "" when every prerequisite
// is Ready.
func (s *Scheduler) blockedBy(r *run, unit dependency.Unit) string {
	for _, dep := range unit.DependsOn {
		switch st := r.state.Status(dep); st {
		case StatusReady:
			continue
		case StatusFailed:
			return fmt.Sprintf("dependency %s failed", dep)
		default:
			return fmt.Sprintf("dependency %s is %s", dep, strings.ToLower(string(st)))
		}
	}
	return ""
}

// runUnit launches and probes one unit and reports whether it became Ready.
func (s *Scheduler) runUnit(ctx context.Context, r *run, unit dependency.Unit) bool {
	if ctx.Err() != nil {
		s.transition(r, unit.ID, StatusSkipped, Update{Reason: s.notLaunchedReason(ctx, r)})
		return true
	}
	s.transition(r, unit.ID, StatusStarting, Update{})

	// A started compose invocation runs to completion so the runtime is not
	// left half-applied; cancellation is observed by the probe.
	if err := s.launcher.Up(context.WithoutCancel(ctx), unit.ComposeServices()); err != nil {
		s.transition(r, unit.ID, StatusFailed, Update{Reason: "launch failed", Err: err})
		return false
	}

	res := s.prober.Probe(ctx, string(unit.ID), unit.Readiness)
	if res.Ready {
		s.transition(r, unit.ID, StatusReady, Update{Attempts: res.Attempts})
		return true
	}

	reason := "readiness not confirmed"
	if ctx.Err() != nil {
		reason = s.notLaunchedReason(ctx, r)
	}
	s.transition(r, unit.ID, StatusFailed, Update{Attempts: res.Attempts, Reason: reason, Err: res.LastError})
	return false
}

func (s *Scheduler) notLaunchedReason(ctx context.Context, r *run) string {
	if aborted, cause := r.abortCause(); aborted {
		return "run aborted: " + cause
	}
	if ctx.Err() != nil {
		return "run canceled"
	}
	return "not started"
}

// skipRemaining marks every unit still Pending as Skipped.
func (s *Scheduler) skipRemaining(ctx context.Context, r *run) {
	for _, id := range r.state.Pending() {
		s.transition(r, id, StatusSkipped, Update{Reason: s.notLaunchedReason(ctx, r)})
	}
}

func (s *Scheduler) transition(r *run, id dependency.UnitID, to Status, u Update) {
	if err := r.state.Transition(id, to, u); err != nil {
		// Only reachable through a scheduler bug; the unit keeps its state.
		r.log.Error(err, "Rejected state change")
		return
	}
	switch to {
	case StatusFailed:
		r.log.Warn("Unit %s failed (%s): %v", id, u.Reason, u.Err)
	case StatusSkipped:
		r.log.Info("Unit %s skipped: %s", id, u.Reason)
	default:
		r.log.Debug("Unit %s -> %s", id, to)
	}
}

func (s *Scheduler) buildReport(r *run, stages []dependency.Stage, start time.Time) *Report {
	report := &Report{
		RunID:     r.id,
		Strict:    s.opts.Strict,
		StartedAt: start,
		Duration:  time.Since(start),
		Stages:    stageNames(stages),
	}
	for _, st := range r.state.All() {
		unit, _ := r.graph.Get(st.ID)
		res := UnitResult{
			ID:        string(st.ID),
			Stage:     st.Stage,
			Status:    st.Status,
			Attempts:  st.Attempts,
			Reason:    st.Reason,
			Readiness: unit.Readiness.String(),
		}
		if st.Err != nil {
			res.Error = st.Err.Error()
		}
		if !st.StartedAt.IsZero() && !st.FinishedAt.IsZero() {
			res.Duration = st.FinishedAt.Sub(st.StartedAt)
		}
		report.Units = append(report.Units, res)
	}
	return report
}
