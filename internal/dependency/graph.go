// internal/dependency/graph.go
package dependency

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"devstack/internal/health"
)

// ErrSealed is returned when a unit is added after the graph was validated.
var ErrSealed = errors.New("dependency graph is sealed")

// UnitID is the unique identifier for a unit inside a dependency graph.
type UnitID string

// Unit is a deployable service together with its prerequisites, its
// readiness check and an optional feature gate.
type Unit struct {
	ID          UnitID
	Description string

	// Services lists the compose services the unit brings up. Empty means
	// a single service named after the unit.
	Services []string

	DependsOn []UnitID
	Readiness health.Check

	// Requires lists capability names that must all be present for the unit
	// to run, for example "gpu" or "os:linux".
	Requires []string
}

// ComposeServices returns the services to bring up for the unit.
func (u Unit) ComposeServices() []string {
	if len(u.Services) == 0 {
		return []string{string(u.ID)}
	}
	return slices.Clone(u.Services)
}

func (u Unit) clone() Unit {
	c := u
	c.Services = slices.Clone(u.Services)
	c.DependsOn = slices.Clone(u.DependsOn)
	c.Requires = slices.Clone(u.Requires)
	c.Readiness.Command = slices.Clone(u.Readiness.Command)
	if u.Readiness.Backoff != nil {
		b := *u.Readiness.Backoff
		c.Readiness.Backoff = &b
	}
	return c
}

// Stage is a set of units that may start together once every earlier stage
// has finished. Identifiers are sorted.
type Stage []UnitID

// String renders the stage as "[a b c]".
func (s Stage) String() string {
	parts := make([]string, len(s))
	for i, id := range s {
		parts[i] = string(id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Graph holds units and answers dependency queries. It is not safe for
// concurrent writes; once Validate succeeds the graph is sealed and may be
// read from multiple goroutines.
type Graph struct {
	units  map[UnitID]*Unit
	sealed bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{units: make(map[UnitID]*Unit)}
}

// AddUnit stores a copy of u. Duplicate identifiers and self-dependencies
// are rejected; unknown prerequisites are only reported by Validate.
func (g *Graph) AddUnit(u Unit) error {
	if g.sealed {
		return fmt.Errorf("add unit %q: %w", u.ID, ErrSealed)
	}
	if u.ID == "" {
		return fmt.Errorf("unit identifier must not be empty")
	}
	if _, exists := g.units[u.ID]; exists {
		return &DuplicateUnitError{Unit: u.ID}
	}
	if slices.Contains(u.DependsOn, u.ID) {
		return &CycleError{Path: []UnitID{u.ID, u.ID}}
	}
	if g.units == nil {
		g.units = make(map[UnitID]*Unit)
	}
	copied := u.clone()
	g.units[u.ID] = &copied
	return nil
}

// Len returns the number of units.
func (g *Graph) Len() int {
	return len(g.units)
}

// Sealed reports whether Validate has succeeded.
func (g *Graph) Sealed() bool {
	return g.sealed
}

// Get returns a copy of the stored unit.
func (g *Graph) Get(id UnitID) (Unit, bool) {
	u, ok := g.units[id]
	if !ok {
		return Unit{}, false
	}
	return u.clone(), true
}

// IDs returns every unit identifier in sorted order.
func (g *Graph) IDs() []UnitID {
	ids := make([]UnitID, 0, len(g.units))
	for id := range g.units {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Units returns copies of every unit sorted by identifier.
func (g *Graph) Units() []Unit {
	ids := g.IDs()
	out := make([]Unit, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.units[id].clone())
	}
	return out
}

// Dependencies returns the immediate prerequisites of id.
func (g *Graph) Dependencies(id UnitID) []UnitID {
	if u, ok := g.units[id]; ok {
		return slices.Clone(u.DependsOn)
	}
	return nil
}

// Dependents returns the units with a direct dependency on id, sorted.
func (g *Graph) Dependents(id UnitID) []UnitID {
	var res []UnitID
	for _, u := range g.units {
		if slices.Contains(u.DependsOn, id) {
			res = append(res, u.ID)
		}
	}
	slices.Sort(res)
	return res
}

// TransitiveDependents returns every unit that directly or indirectly
// depends on id, sorted.
func (g *Graph) TransitiveDependents(id UnitID) []UnitID {
	seen := map[UnitID]bool{}
	queue := g.Dependents(id)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		queue = append(queue, g.Dependents(next)...)
	}
	res := make([]UnitID, 0, len(seen))
	for d := range seen {
		res = append(res, d)
	}
	slices.Sort(res)
	return res
}
