package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"devstack/internal/capability"
	"devstack/internal/config"
	"devstack/internal/containerizer"
	"devstack/internal/dependency"
	"devstack/internal/health"
	"devstack/internal/scheduler"
	"devstack/internal/stack"
	"devstack/pkg/logging"
)

// CapabilityProber detects host capabilities. *capability.Prober
// satisfies it.
type CapabilityProber interface {
	Probe(ctx context.Context) capability.Capabilities
}

// HealthProber polls readiness. *health.Prober satisfies it.
type HealthProber interface {
	scheduler.Prober
	Attempt(ctx context.Context, check health.Check) error
}

// RuntimeFactory creates the compose runtime for a resolved project.
type RuntimeFactory func(runtime string, project containerizer.Project) (containerizer.ComposeRuntime, error)

// Config holds the configuration for the orchestrator.
type Config struct {
	Stack *stack.Stack

	// EnvFile is the override file layered over the stack's template.
	EnvFile string

	// Environ is usually os.Environ(); only declared keys are taken.
	Environ []string

	// Template is merged over the stack's own template mapping.
	Template map[string]string

	Runtime string // "docker" or "podman"
	Project string // overrides COMPOSE_PROJECT_NAME
	WorkDir string // compose working directory and asset location

	Strict      bool
	Parallel    int
	MaxAttempts int             // overrides the stack's probe default
	Backoff     *health.Backoff // overrides the stack's probe default

	Observer scheduler.Observer

	// Optional collaborators; real implementations are used when nil.
	NewRuntime   RuntimeFactory
	Capabilities CapabilityProber
	Health       HealthProber
}

// Orchestrator drives a stack through resolve, validate, schedule and
// report. It runs one operation at a time.
type Orchestrator struct {
	cfg Config

	mu          sync.Mutex
	phase       Phase
	subscribers []chan<- PhaseChange
}

// New creates a new orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Stack == nil {
		return nil, errors.New("orchestrator: stack is required")
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.WorkDir = wd
	}
	if cfg.NewRuntime == nil {
		cfg.NewRuntime = containerizer.NewComposeRuntime
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = capability.NewProber(capability.Options{Runtime: cfg.Runtime})
	}
	if cfg.Health == nil {
		maxAttempts := cfg.Stack.Probe.MaxAttempts
		if cfg.MaxAttempts > 0 {
			maxAttempts = cfg.MaxAttempts
		}
		backoff := cfg.Stack.Probe.Backoff
		if cfg.Backoff != nil {
			backoff = *cfg.Backoff
		}
		cfg.Health = health.NewProber(health.Options{MaxAttempts: maxAttempts, Backoff: backoff})
	}
	return &Orchestrator{cfg: cfg, phase: PhaseIdle}, nil
}

// session is what one operation works on once resolved and validated.
type session struct {
	config  *config.Config
	project containerizer.Project
	runtime containerizer.ComposeRuntime
	caps    capability.Capabilities
	graph   *dependency.Graph
	stages  []dependency.Stage
}

// ResolveConfig merges the configuration layers for the stack.
func (o *Orchestrator) ResolveConfig() (*config.Config, error) {
	return config.Resolve(config.Sources{
		Schema:       o.cfg.Stack.Keys,
		Template:     o.template(),
		OverrideFile: o.cfg.EnvFile,
		Environ:      o.cfg.Environ,
	})
}

func (o *Orchestrator) template() map[string]string {
	t := o.cfg.Stack.Template()
	if t == nil {
		t = map[string]string{}
	}
	maps.Copy(t, o.cfg.Template)
	return t
}

// projectName picks the compose project: the explicit override, then
// COMPOSE_PROJECT_NAME, then the stack's project, then its name.
func (o *Orchestrator) projectName(cfg *config.Config) string {
	for _, name := range []string{o.cfg.Project, cfg.Get("COMPOSE_PROJECT_NAME"), o.cfg.Stack.Project} {
		if name != "" {
			return name
		}
	}
	return o.cfg.Stack.Name
}

// prepare runs the Resolving and Validating phases. Nothing is started
// on the runtime here; a failure leaves the host untouched.
func (o *Orchestrator) prepare(ctx context.Context, op string, needRuntime bool) (*session, error) {
	if err := o.begin(op); err != nil {
		return nil, err
	}

	cfg, err := o.ResolveConfig()
	if err != nil {
		return nil, o.finish(op, err)
	}
	s := &session{config: cfg}
	s.project = containerizer.Project{
		Name:    o.projectName(cfg),
		Files:   o.cfg.Stack.ComposePaths(),
		WorkDir: o.cfg.WorkDir,
		Env:     cfg.Environ(),
	}

	s.caps = o.cfg.Capabilities.Probe(ctx)
	logging.Debug("Orchestrator", "Capabilities: os=%s arch=%s gpu=%t runtime=%t", s.caps.OS, s.caps.Arch, s.caps.GPUAvailable, s.caps.ContainerRuntimeReachable)

	if needRuntime {
		rt, err := o.cfg.NewRuntime(o.cfg.Runtime, s.project)
		if err != nil {
			return nil, o.finish(op, err)
		}
		if !s.caps.ContainerRuntimeReachable {
			return nil, o.finish(op, &containerizer.RuntimeUnavailableError{
				Runtime: rt.Name(),
				Err:     unreachableReason(s.caps),
			})
		}
		s.runtime = rt
	}

	if err := o.setPhase(op, PhaseValidating, nil); err != nil {
		return nil, o.finish(op, err)
	}
	g, err := o.cfg.Stack.Build(cfg)
	if err != nil {
		return nil, o.finish(op, err)
	}
	s.graph = g
	if s.stages, err = g.ComputeStages(); err != nil {
		return nil, o.finish(op, err)
	}
	return s, nil
}

func unreachableReason(caps capability.Capabilities) error {
	if caps.RuntimeError != "" {
		return errors.New(caps.RuntimeError)
	}
	return errors.New("daemon did not answer")
}

// Install prepares the host and brings the whole stack up: it writes the
// stack's bundled files, creates data directories, pulls images for every
// unit that can run on this host and then schedules the graph.
func (o *Orchestrator) Install(ctx context.Context) (*scheduler.Report, error) {
	return o.deploy(ctx, "install", true)
}

// Start brings the stack up without creating directories or pulling images.
func (o *Orchestrator) Start(ctx context.Context) (*scheduler.Report, error) {
	return o.deploy(ctx, "start", false)
}

// Update pulls newer images and re-runs the scheduler so changed
// containers are recreated.
func (o *Orchestrator) Update(ctx context.Context) (*scheduler.Report, error) {
	const op = "update"
	s, err := o.prepare(ctx, op, true)
	if err != nil {
		return nil, err
	}
	if err := o.setPhase(op, PhaseScheduling, nil); err != nil {
		return nil, o.finish(op, err)
	}
	if err := s.runtime.Pull(ctx, runnableServices(s)); err != nil {
		return nil, o.finish(op, fmt.Errorf("failed to pull images: %w", err))
	}
	return o.schedule(ctx, op, s)
}

func (o *Orchestrator) deploy(ctx context.Context, op string, install bool) (*scheduler.Report, error) {
	s, err := o.prepare(ctx, op, true)
	if err != nil {
		return nil, err
	}
	if err := o.setPhase(op, PhaseScheduling, nil); err != nil {
		return nil, o.finish(op, err)
	}

	if _, err := o.cfg.Stack.WriteAssets(o.cfg.WorkDir); err != nil {
		return nil, o.finish(op, fmt.Errorf("failed to write stack files: %w", err))
	}
	if install {
		if err := o.createDataDirs(s); err != nil {
			return nil, o.finish(op, err)
		}
		if err := s.runtime.Pull(ctx, runnableServices(s)); err != nil {
			return nil, o.finish(op, fmt.Errorf("failed to pull images: %w", err))
		}
	}
	return o.schedule(ctx, op, s)
}

func (o *Orchestrator) schedule(ctx context.Context, op string, s *session) (*scheduler.Report, error) {
	sched := scheduler.New(s.runtime, o.cfg.Health, scheduler.Options{
		Strict:   o.cfg.Strict,
		Parallel: o.cfg.Parallel,
		Observer: o.cfg.Observer,
	})
	report, err := sched.Run(ctx, s.graph, s.caps)
	if err != nil {
		return nil, o.finish(op, err)
	}

	if err := o.setPhase(op, PhaseReporting, nil); err != nil {
		return report, o.finish(op, err)
	}
	logging.Info("Orchestrator", "%s finished: %s", op, report.Summary())

	err = report.Err()
	if err == nil && report.Canceled {
		err = fmt.Errorf("%s canceled: %w", op, context.Canceled)
	}
	return report, o.finish(op, err)
}

// dataDirs returns the stack's data directories with relative paths
// resolved against the work directory.
func (o *Orchestrator) dataDirs(s *session) ([]string, error) {
	dirs, err := o.cfg.Stack.DataDirs(s.config)
	if err != nil {
		return nil, err
	}
	for i, d := range dirs {
		if !filepath.IsAbs(d) {
			dirs[i] = filepath.Join(o.cfg.WorkDir, d)
		}
	}
	return dirs, nil
}

func (o *Orchestrator) createDataDirs(s *session) error {
	dirs, err := o.dataDirs(s)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
		logging.Debug("Orchestrator", "Created data directory %s", dir)
	}
	return nil
}

// runnableServices lists the compose services of units whose capability
// gate passes, in stage order.
func runnableServices(s *session) []string {
	var out []string
	for _, stage := range s.stages {
		for _, id := range stage {
			u, _ := s.graph.Get(id)
			if len(s.caps.Missing(u.Requires)) > 0 {
				continue
			}
			out = append(out, u.ComposeServices()...)
		}
	}
	return out
}

// Plan resolves and validates the stack and returns what a run would do
// without touching the runtime.
func (o *Orchestrator) Plan(ctx context.Context) (*Plan, error) {
	const op = "plan"
	s, err := o.prepare(ctx, op, false)
	if err != nil {
		return nil, err
	}
	if err := o.setPhase(op, PhaseReporting, nil); err != nil {
		return nil, o.finish(op, err)
	}
	return buildPlan(s, o.projectName(s.config)), o.finish(op, nil)
}
