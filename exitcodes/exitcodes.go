// Package exitcodes defines the standard exit codes used by wd-orchestrator.
package exitcodes

// Exit code constants used by wd-orchestrator
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every dispatched work unit passes
// * UnitFailure (1): Used when at least one work unit fails
// * RuntimeErr (2): Used for runtime errors such as configuration problems,
//   discovery failures or a WebDriver server that never came up
const (
	Success     = 0 // Every work unit passed
	UnitFailure = 1 // At least one work unit failed
	RuntimeErr  = 2 // Runtime errors, pre-dispatch aborts
)
