package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"devstack/internal/config"
	"devstack/internal/containerizer"
	"devstack/internal/dependency"
	"devstack/pkg/logging"
)

// Stop stops the stack's units in reverse stage order so dependents go
// down before what they depend on.
func (o *Orchestrator) Stop(ctx context.Context) error {
	const op = "stop"
	s, err := o.prepare(ctx, op, true)
	if err != nil {
		return err
	}
	if err := o.setPhase(op, PhaseScheduling, nil); err != nil {
		return o.finish(op, err)
	}
	for i := len(s.stages) - 1; i >= 0; i-- {
		services := stageServices(s.graph, s.stages[i])
		logging.Info("Orchestrator", "Stopping stage %d: %s", i+1, s.stages[i])
		if err := s.runtime.Stop(ctx, services); err != nil {
			return o.finish(op, fmt.Errorf("failed to stop stage %d: %w", i+1, err))
		}
	}
	if err := o.setPhase(op, PhaseReporting, nil); err != nil {
		return o.finish(op, err)
	}
	return o.finish(op, nil)
}

func stageServices(g *dependency.Graph, stage dependency.Stage) []string {
	var out []string
	for _, id := range stage {
		u, _ := g.Get(id)
		out = append(out, u.ComposeServices()...)
	}
	return out
}

// Status reports every unit's containers and, for running units, the
// outcome of a single readiness attempt.
func (o *Orchestrator) Status(ctx context.Context) ([]UnitStatus, error) {
	const op = "status"
	s, err := o.prepare(ctx, op, true)
	if err != nil {
		return nil, err
	}
	if err := o.setPhase(op, PhaseReporting, nil); err != nil {
		return nil, o.finish(op, err)
	}

	running, err := s.runtime.Running(ctx)
	if err != nil {
		return nil, o.finish(op, fmt.Errorf("failed to list containers: %w", err))
	}
	byService := map[string][]containerizer.ServiceStatus{}
	for _, c := range running {
		byService[c.Service] = append(byService[c.Service], c)
	}

	var units []dependency.Unit
	var out []UnitStatus
	for i, stage := range s.stages {
		for _, id := range stage {
			u, _ := s.graph.Get(id)
			st := UnitStatus{ID: string(id), Stage: i, Readiness: u.Readiness.String()}
			up := 0
			services := u.ComposeServices()
			for _, svc := range services {
				containers := byService[svc]
				st.Containers = append(st.Containers, containers...)
				if slices.ContainsFunc(containers, containerizer.ServiceStatus.IsRunning) {
					up++
				}
			}
			switch {
			case up == len(services):
				st.State = UnitRunning
			case up > 0:
				st.State = UnitPartial
			default:
				st.State = UnitStopped
			}
			if missing := s.caps.Missing(u.Requires); len(missing) > 0 && st.State == UnitStopped {
				st.Detail = "requires " + strings.Join(missing, ", ")
			}
			units = append(units, u)
			out = append(out, st)
		}
	}

	var eg errgroup.Group
	eg.SetLimit(8)
	for i := range out {
		if out[i].State != UnitRunning {
			continue
		}
		check := units[i].Readiness
		eg.Go(func() error {
			if err := o.cfg.Health.Attempt(ctx, check); err != nil {
				out[i].Detail = err.Error()
				return nil
			}
			out[i].Ready = true
			return nil
		})
	}
	_ = eg.Wait()

	return out, o.finish(op, nil)
}

// Logs streams compose logs for one unit's services, or for the whole
// project when unit is empty.
func (o *Orchestrator) Logs(ctx context.Context, unit string, opts containerizer.LogOptions, w io.Writer) error {
	const op = "logs"
	s, err := o.prepare(ctx, op, true)
	if err != nil {
		return err
	}
	if unit != "" {
		u, ok := s.graph.Get(dependency.UnitID(unit))
		if !ok {
			return o.finish(op, &UnknownUnitError{Unit: unit})
		}
		opts.Services = u.ComposeServices()
	}
	if err := o.setPhase(op, PhaseReporting, nil); err != nil {
		return o.finish(op, err)
	}
	return o.finish(op, s.runtime.Logs(ctx, opts, w))
}

// Clean removes the project's containers, networks and volumes and then its
// data directories. Nothing is removed unless confirm approves.
func (o *Orchestrator) Clean(ctx context.Context, confirm Confirmer) error {
	const op = "clean"
	s, err := o.prepare(ctx, op, true)
	if err != nil {
		return err
	}
	dirs, err := o.dataDirs(s)
	if err != nil {
		return o.finish(op, err)
	}
	for _, dir := range dirs {
		if err := o.checkRemovable(dir); err != nil {
			return o.finish(op, err)
		}
	}

	prompt := fmt.Sprintf("Remove project %s with its volumes and %d data directories?", s.project.Name, len(dirs))
	ok, err := confirm.Confirm(prompt)
	if err != nil {
		return o.finish(op, fmt.Errorf("confirmation failed: %w", err))
	}
	if !ok {
		return o.finish(op, ErrNotConfirmed)
	}

	if err := o.setPhase(op, PhaseScheduling, nil); err != nil {
		return o.finish(op, err)
	}
	if err := s.runtime.Down(ctx, true); err != nil {
		return o.finish(op, fmt.Errorf("failed to remove containers: %w", err))
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return o.finish(op, fmt.Errorf("failed to remove %s: %w", dir, err))
		}
		logging.Info("Orchestrator", "Removed %s", dir)
	}
	if err := o.setPhase(op, PhaseReporting, nil); err != nil {
		return o.finish(op, err)
	}
	return o.finish(op, nil)
}

// checkRemovable refuses directories whose removal would take more than
// the stack's own data with it: the filesystem root, or any directory that
// is or contains the work directory or the user's home.
func (o *Orchestrator) checkRemovable(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	protected := []string{string(filepath.Separator), o.cfg.WorkDir}
	if home, err := os.UserHomeDir(); err == nil {
		protected = append(protected, home)
	}
	for _, p := range protected {
		if p == "" {
			continue
		}
		if p, err = filepath.Abs(p); err != nil {
			continue
		}
		if within(p, abs) {
			return fmt.Errorf("refusing to remove %s: it contains %s; data directories must be below the project", abs, p)
		}
	}
	return nil
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// InitEnv writes the override env file with every declared key. Secrets
// get freshly generated values. An existing file is kept unless force is
// set.
func (o *Orchestrator) InitEnv(force bool) (string, error) {
	path := o.cfg.EnvFile
	if path == "" {
		path = filepath.Join(o.cfg.WorkDir, config.DefaultEnvFile)
	}
	values, err := config.InitValues(o.cfg.Stack.Keys, o.template())
	if err != nil {
		return "", err
	}
	if err := config.WriteEnvFile(path, o.cfg.Stack.Keys, values, force); err != nil {
		return "", err
	}
	logging.Info("Orchestrator", "Wrote %s with %d key(s)", path, len(values))
	return path, nil
}
