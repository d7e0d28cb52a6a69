package dependency

import (
	"slices"
)

// Validate checks that every prerequisite is declared and that the graph is
// acyclic. On success the graph is sealed and no further units can be added.
func (g *Graph) Validate() error {
	for _, id := range g.IDs() {
		deps := slices.Clone(g.units[id].DependsOn)
		slices.Sort(deps)
		for _, dep := range deps {
			if _, ok := g.units[dep]; !ok {
				return &UnknownDependencyError{Unit: id, Dependency: dep}
			}
		}
	}

	if _, placed := g.layers(); placed != len(g.units) {
		return &CycleError{Path: g.findCycle()}
	}

	g.sealed = true
	return nil
}

// ComputeStages validates the graph and returns its topological layering.
// A unit lands in the first stage after all of its prerequisites; units
// inside a stage are ordered by identifier. The result is deterministic.
func (g *Graph) ComputeStages() ([]Stage, error) {
	if !g.sealed {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}
	stages, _ := g.layers()
	return stages, nil
}

// layers runs Kahn's algorithm one frontier at a time. It returns the stages
// it could build and how many units were placed; fewer placed units than
// declared means a cycle.
func (g *Graph) layers() ([]Stage, int) {
	indeg := make(map[UnitID]int, len(g.units))
	dependents := make(map[UnitID][]UnitID, len(g.units))
	for id, u := range g.units {
		seen := map[UnitID]bool{}
		for _, dep := range u.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if _, ok := g.units[dep]; !ok {
				continue
			}
			indeg[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var frontier Stage
	for id := range g.units {
		if indeg[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	var stages []Stage
	placed := 0
	for len(frontier) > 0 {
		slices.Sort(frontier)
		stages = append(stages, frontier)
		placed += len(frontier)

		var next Stage
		for _, id := range frontier {
			for _, d := range dependents[id] {
				indeg[d]--
				if indeg[d] == 0 {
					next = append(next, d)
				}
			}
		}
		frontier = next
	}
	return stages, placed
}

// findCycle extracts one cycle with a DFS over sorted identifiers, so the
// same graph always yields the same witness.
func (g *Graph) findCycle() []UnitID {
	const (
		white = iota
		gray
		black
	)

	color := make(map[UnitID]int, len(g.units))
	parent := make(map[UnitID]UnitID, len(g.units))
	var cycle []UnitID

	var dfs func(u UnitID) bool
	dfs = func(u UnitID) bool {
		color[u] = gray
		deps := slices.Clone(g.units[u].DependsOn)
		slices.Sort(deps)
		for _, v := range deps {
			if _, ok := g.units[v]; !ok {
				continue
			}
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// Back edge u -> v; walk parents from u back to v.
				walk := []UnitID{v, u}
				for cur := u; cur != v; {
					cur = parent[cur]
					walk = append(walk, cur)
				}
				slices.Reverse(walk)
				cycle = walk
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, id := range g.IDs() {
		if color[id] == white && dfs(id) {
			break
		}
	}
	return cycle
}
