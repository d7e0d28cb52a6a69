package orchestrator

import (
	"errors"
	"fmt"

	"devstack/internal/capability"
	"devstack/internal/containerizer"
)

// Plan describes the stages a run would execute.
type Plan struct {
	Project      string                  `json:"project" yaml:"project"`
	Stack        string                  `json:"stack" yaml:"stack"`
	Capabilities capability.Capabilities `json:"capabilities" yaml:"capabilities"`
	Stages       [][]PlanUnit            `json:"stages" yaml:"stages"`
}

// PlanUnit is one unit within a Plan.
type PlanUnit struct {
	ID        string   `json:"id" yaml:"id"`
	Services  []string `json:"services" yaml:"services"`
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Readiness string   `json:"readiness" yaml:"readiness"`

	// Gated lists required capabilities this host lacks; the unit would
	// be skipped.
	Gated []string `json:"gated,omitempty" yaml:"gated,omitempty"`
}

// Units returns the number of units in the plan.
func (p *Plan) Units() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s)
	}
	return n
}

func buildPlan(s *session, project string) *Plan {
	p := &Plan{Project: project, Capabilities: s.caps}
	for _, stage := range s.stages {
		units := make([]PlanUnit, 0, len(stage))
		for _, id := range stage {
			u, _ := s.graph.Get(id)
			pu := PlanUnit{
				ID:        string(u.ID),
				Services:  u.ComposeServices(),
				Readiness: u.Readiness.String(),
				Gated:     s.caps.Missing(u.Requires),
			}
			for _, d := range u.DependsOn {
				pu.DependsOn = append(pu.DependsOn, string(d))
			}
			units = append(units, pu)
		}
		p.Stages = append(p.Stages, units)
	}
	return p
}

// UnitState summarizes a unit's containers.
type UnitState string

const (
	UnitRunning UnitState = "running"
	UnitPartial UnitState = "partial"
	UnitStopped UnitState = "stopped"
)

// UnitStatus is one row of `devstack status`.
type UnitStatus struct {
	ID         string                        `json:"id" yaml:"id"`
	Stage      int                           `json:"stage" yaml:"stage"`
	State      UnitState                     `json:"state" yaml:"state"`
	Ready      bool                          `json:"ready" yaml:"ready"`
	Detail     string                        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Readiness  string                        `json:"readiness" yaml:"readiness"`
	Containers []containerizer.ServiceStatus `json:"containers,omitempty" yaml:"containers,omitempty"`
}

// Confirmer asks the operator to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ErrNotConfirmed is returned when the operator declines a clean.
var ErrNotConfirmed = errors.New("clean was not confirmed")

// UnknownUnitError is returned when an operation names a unit the stack
// does not declare.
type UnknownUnitError struct {
	Unit string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown unit %q", e.Unit)
}
