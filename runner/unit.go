package runner

import "fmt"

// UnitKind distinguishes the two kinds of work a child process can be
// assigned: a whole environment or a single test module.
type UnitKind int

const (
	UnitEnvironment UnitKind = iota
	UnitModule
)

func (k UnitKind) String() string {
	switch k {
	case UnitEnvironment:
		return "environment"
	case UnitModule:
		return "module"
	default:
		return "unknown"
	}
}

// WorkUnit is one indivisible piece of execution assigned to a single child
// process: one environment in multi-environment mode, or one test module in
// worker-pool mode.
type WorkUnit struct {
	Kind UnitKind
	ID   string // environment id or module path
}

// EnvironmentUnit builds a work unit for one named environment.
func EnvironmentUnit(id string) WorkUnit {
	return WorkUnit{Kind: UnitEnvironment, ID: id}
}

// ModuleUnit builds a work unit for one test module path.
func ModuleUnit(path string) WorkUnit {
	return WorkUnit{Kind: UnitModule, ID: path}
}

// Label returns the display label under which this unit's output is grouped.
func (u WorkUnit) Label() string {
	if u.Kind == UnitEnvironment {
		return fmt.Sprintf("%s environment", u.ID)
	}
	return u.ID
}
