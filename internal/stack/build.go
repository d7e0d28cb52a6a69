package stack

import (
	"fmt"
	"path/filepath"

	"devstack/internal/config"
	"devstack/internal/dependency"
	"devstack/internal/health"
)

// Build evaluates every unit against cfg and returns a validated graph.
// Graph errors (*dependency.CycleError, *dependency.UnknownDependencyError)
// are returned wrapped so callers can match them with errors.As.
func (s *Stack) Build(cfg *config.Config) (*dependency.Graph, error) {
	env := cfg.Map()
	g := dependency.New()

	for _, def := range s.Units {
		unit, err := s.evalUnit(def, env)
		if err != nil {
			return nil, err
		}
		if err := g.AddUnit(unit); err != nil {
			return nil, fmt.Errorf("stack %s: %w", s.Source, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Source, err)
	}
	return g, nil
}

func (s *Stack) evalUnit(def UnitDef, env map[string]string) (dependency.Unit, error) {
	r := def.Readiness
	check := health.Check{
		Kind:        r.Kind,
		Timeout:     r.Timeout,
		MaxAttempts: r.MaxAttempts,
		Backoff:     r.Backoff,
	}
	if check.Kind == "" {
		check.Kind = health.KindNone
	}
	if r.Target != nil {
		target, err := r.Target.Eval(env)
		if err != nil {
			return dependency.Unit{}, &EvalError{Unit: def.ID, Field: "readiness target", Err: err}
		}
		check.Target = target
	}
	if r.Command != nil {
		argv, err := r.Command.Eval(env)
		if err != nil {
			return dependency.Unit{}, &EvalError{Unit: def.ID, Field: "readiness command", Err: err}
		}
		check.Command = argv
	}
	if err := check.Validate(); err != nil {
		return dependency.Unit{}, &EvalError{Unit: def.ID, Field: "readiness", Err: err}
	}

	deps := make([]dependency.UnitID, len(def.DependsOn))
	for i, d := range def.DependsOn {
		deps[i] = dependency.UnitID(d)
	}
	return dependency.Unit{
		ID:          dependency.UnitID(def.ID),
		Description: def.Description,
		Services:    def.Services,
		DependsOn:   deps,
		Readiness:   check,
		Requires:    def.Requires,
	}, nil
}

// DataDirs evaluates the stack's data directories against cfg. Relative
// paths are resolved against Dir.
func (s *Stack) DataDirs(cfg *config.Config) ([]string, error) {
	if s.Directories == nil {
		return nil, nil
	}
	dirs, err := s.Directories.Eval(cfg.Map())
	if err != nil {
		return nil, &EvalError{Field: "directories", Err: err}
	}
	out := dirs[:0]
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if s.dir != "" && !filepath.IsAbs(d) {
			d = filepath.Join(s.dir, d)
		}
		out = append(out, filepath.Clean(d))
	}
	return out, nil
}
