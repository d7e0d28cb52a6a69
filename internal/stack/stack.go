package stack

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"devstack/internal/capability"
	"devstack/internal/config"
	"devstack/internal/health"
)

// Value is a string resolved against the configuration when the graph is
// built. YAML stacks use Go templates, HCL stacks use HCL expressions.
type Value interface {
	Eval(env map[string]string) (string, error)
}

// List is a list of strings resolved against the configuration.
type List interface {
	Eval(env map[string]string) ([]string, error)
}

// ProbeDefaults are applied to every unit that does not override them.
type ProbeDefaults struct {
	MaxAttempts int
	Backoff     health.Backoff
}

// Readiness is a unit's readiness check before evaluation.
type Readiness struct {
	Kind        health.Kind
	Target      Value
	Command     List
	Timeout     time.Duration
	MaxAttempts int
	Backoff     *health.Backoff
}

// UnitDef declares one unit of the stack.
type UnitDef struct {
	ID          string
	Description string
	Services    []string
	DependsOn   []string
	Requires    []string
	Readiness   Readiness
}

// Stack is a loaded stack definition.
type Stack struct {
	Name         string
	Project      string
	ComposeFiles []string
	Keys         config.Schema

	// Environment is the template mapping layered over key defaults.
	Environment map[string]string

	Directories List
	Probe       ProbeDefaults
	Units       []UnitDef

	// Source names the file the stack came from.
	Source string

	// Assets holds files bundled with an embedded stack, keyed by name.
	Assets map[string][]byte

	dir string
}

// Dir is the directory relative paths in the stack are resolved against.
// It is empty for the embedded stack.
func (s *Stack) Dir() string {
	return s.dir
}

// Template returns a copy of the stack's template mapping.
func (s *Stack) Template() map[string]string {
	return maps.Clone(s.Environment)
}

// ComposePaths returns the compose files resolved against Dir.
func (s *Stack) ComposePaths() []string {
	out := make([]string, len(s.ComposeFiles))
	for i, f := range s.ComposeFiles {
		if s.dir != "" && !filepath.IsAbs(f) {
			f = filepath.Join(s.dir, f)
		}
		out[i] = f
	}
	return out
}

// Unit returns the definition of id.
func (s *Stack) Unit(id string) (UnitDef, bool) {
	for _, u := range s.Units {
		if u.ID == id {
			return u, true
		}
	}
	return UnitDef{}, false
}

// UnitIDs returns the unit identifiers in declaration order.
func (s *Stack) UnitIDs() []string {
	ids := make([]string, len(s.Units))
	for i, u := range s.Units {
		ids[i] = u.ID
	}
	return ids
}

// Validate checks the parts of the stack that do not depend on the
// configuration. Dependency errors are reported when the graph is built.
func (s *Stack) Validate() error {
	if s.Name == "" {
		return s.errorf("name is required")
	}
	if len(s.Units) == 0 {
		return s.errorf("at least one unit is required")
	}
	if len(s.ComposeFiles) == 0 {
		return s.errorf("at least one compose file is required")
	}
	if err := s.Keys.Validate(); err != nil {
		return s.errorf("%v", err)
	}
	if s.Probe.MaxAttempts < 0 {
		return s.errorf("probe max_attempts must not be negative")
	}
	if err := s.Probe.Backoff.Validate(); err != nil {
		return s.errorf("probe: %v", err)
	}

	seen := map[string]bool{}
	for _, u := range s.Units {
		if u.ID == "" {
			return s.errorf("unit without id")
		}
		if seen[u.ID] {
			return s.errorf("unit %q declared twice", u.ID)
		}
		seen[u.ID] = true
		for _, req := range u.Requires {
			if !capability.KnownFeature(req) {
				return s.errorf("unit %q requires unknown feature %q", u.ID, req)
			}
		}
		if _, err := health.ParseKind(string(u.Readiness.Kind)); err != nil {
			return s.errorf("unit %q: %v", u.ID, err)
		}
		if u.Readiness.Backoff != nil {
			if err := u.Readiness.Backoff.Validate(); err != nil {
				return s.errorf("unit %q: %v", u.ID, err)
			}
		}
		if slices.Contains(u.DependsOn, u.ID) {
			return s.errorf("unit %q depends on itself", u.ID)
		}
	}
	return nil
}

func (s *Stack) errorf(format string, args ...any) error {
	return &Error{File: s.Source, Msg: fmt.Sprintf(format, args...)}
}

// Error reports an invalid stack file.
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("stack %s:%d: %s", e.File, e.Line, e.Msg)
	case e.File != "":
		return fmt.Sprintf("stack %s: %s", e.File, e.Msg)
	default:
		return "stack: " + e.Msg
	}
}

// EvalError reports a unit field that could not be resolved against the
// configuration.
type EvalError struct {
	Unit  string
	Field string
	Err   error
}

func (e *EvalError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("evaluate %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("unit %s: evaluate %s: %v", e.Unit, e.Field, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}
