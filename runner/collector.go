package runner

import (
	"fmt"
	"strings"
	"time"
)

// UnitOutcome is the recorded result of one work unit.
type UnitOutcome struct {
	Unit       WorkUnit
	Label      string
	Dispatched bool // false when dispatch halted before this unit was reached
	ExitCode   int
	Lines      []string // the unit's output, in emission order
	Duration   time.Duration
	SpawnErr   error // set when the child could not be created
}

// Passed reports whether this unit ran and exited zero.
func (o UnitOutcome) Passed() bool {
	return o.Dispatched && o.SpawnErr == nil && o.ExitCode == 0
}

// RunReport is the merged result of one orchestrated run.
type RunReport struct {
	RunID        string
	Outcomes     []UnitOutcome // unit submission order
	ExitCode     int           // nonzero iff at least one dispatched unit's code is nonzero
	InfraFailure bool          // a unit failed to spawn, or dispatch was halted
	StartTime    time.Time
	Duration     time.Duration
}

// Output returns the per-label output mapping for inspection beyond the
// aggregate exit code.
func (r *RunReport) Output() map[string][]string {
	out := make(map[string][]string, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.Label] = o.Lines
	}
	return out
}

// Passed / Failed / Pending counts over the outcome list.
func (r *RunReport) Counts() (passed, failed, pending int) {
	for _, o := range r.Outcomes {
		switch {
		case !o.Dispatched:
			pending++
		case o.Passed():
			passed++
		default:
			failed++
		}
	}
	return passed, failed, pending
}

func (r *RunReport) String() string {
	passed, failed, pending := r.Counts()
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s: %d passed, %d failed", r.RunID, passed, failed)
	if pending > 0 {
		fmt.Fprintf(&sb, ", %d never dispatched", pending)
	}
	fmt.Fprintf(&sb, " (%.1fs)", r.Duration.Seconds())
	return sb.String()
}

var _ ResultCollector = (*resultCollector)(nil)

// ResultCollector merges per-unit outcomes into one exit status.
type ResultCollector interface {
	// NewRunReport initializes an empty report for a run
	NewRunReport(runID string) *RunReport

	// Merge folds the outcome list into the report and computes the
	// aggregate exit code
	Merge(report *RunReport, outcomes []UnitOutcome)

	// Finalize stamps the wall clock duration and aggregate status
	Finalize(report *RunReport)
}

type resultCollector struct{}

// NewResultCollector creates a new result collector
func NewResultCollector() ResultCollector {
	return &resultCollector{}
}

func (c *resultCollector) NewRunReport(runID string) *RunReport {
	return &RunReport{
		RunID:     runID,
		StartTime: time.Now(),
	}
}

// Merge adds outcomes to the report. A nonzero exit from any dispatched unit
// marks the overall run failed; per-unit distinctions beyond zero/nonzero are
// not folded into the aggregate code and remain available via Output().
func (c *resultCollector) Merge(report *RunReport, outcomes []UnitOutcome) {
	report.Outcomes = append(report.Outcomes, outcomes...)
}

func (c *resultCollector) Finalize(report *RunReport) {
	report.Duration = time.Since(report.StartTime)
	report.ExitCode = 0
	report.InfraFailure = false
	for _, o := range report.Outcomes {
		if o.SpawnErr != nil || !o.Dispatched {
			report.InfraFailure = true
		}
		if o.Dispatched && !o.Passed() {
			report.ExitCode = 1
		}
	}
}
