package dependency

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle. Path starts and ends with the same
// unit, e.g. [a b a].
type CycleError struct {
	Path []UnitID
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return "dependency cycle detected: " + strings.Join(parts, " -> ")
}

// UnknownDependencyError reports a prerequisite that names no declared unit.
type UnknownDependencyError struct {
	Unit       UnitID
	Dependency UnitID
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("unit %q depends on undeclared unit %q", e.Unit, e.Dependency)
}

// DuplicateUnitError reports a second unit with an existing identifier.
type DuplicateUnitError struct {
	Unit UnitID
}

func (e *DuplicateUnitError) Error() string {
	return fmt.Sprintf("unit %q declared more than once", e.Unit)
}
