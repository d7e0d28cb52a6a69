// Package dependency provides the directed acyclic graph that orders the
// units of a stack.
//
// # Core Concepts
//
// Unit: a deployable service with:
//   - ID: unique identifier
//   - Services: compose services it brings up (defaults to the ID)
//   - DependsOn: units that must be ready first
//   - Readiness: the health.Check confirming it is usable
//   - Requires: capability gate such as "gpu"
//
// Stage: a set of units whose prerequisites all sit in earlier stages.
// Stages run one after another; units inside a stage run together.
//
// # Building a Graph
//
//	g := dependency.New()
//	_ = g.AddUnit(dependency.Unit{ID: "postgres"})
//	_ = g.AddUnit(dependency.Unit{ID: "gitea", DependsOn: []dependency.UnitID{"postgres"}})
//	stages, err := g.ComputeStages() // [[postgres] [gitea]]
//
// AddUnit copies the unit, so callers cannot mutate a unit after insertion.
// Validate reports the first undeclared prerequisite as an
// *UnknownDependencyError, or a *CycleError naming one cycle. After a
// successful Validate the graph is sealed.
//
// # Determinism
//
// ComputeStages uses Kahn's algorithm layer by layer and sorts every layer
// by identifier, so the same graph always yields the same stages. Cycle
// witnesses come from a DFS over sorted identifiers for the same reason.
//
// # Failure Propagation
//
// TransitiveDependents answers "which units can no longer start if this one
// fails", which the scheduler uses to mark them Skipped.
package dependency
