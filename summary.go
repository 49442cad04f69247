package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/wdgrid/orchestrator/runner"
)

// printSummaryTable prints the per-unit results of one orchestrated run to
// the console.
func (o *Orchestrator) printSummaryTable(report *runner.RunReport, plan *Plan) {
	o.config.Log.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Run Results (%s)", formatDuration(report.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Lines", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Lines", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, outcome := range report.Outcomes {
		errorMsg := ""
		switch {
		case outcome.SpawnErr != nil:
			errorMsg = outcome.SpawnErr.Error()
		case !outcome.Dispatched:
			errorMsg = "not dispatched"
		}

		t.AppendRow(table.Row{
			outcome.Unit.Kind.String(),
			outcome.Label,
			formatDuration(outcome.Duration),
			len(outcome.Lines),
			getResultString(outcome),
			errorMsg,
		})
	}
	t.AppendSeparator()

	if report.ExitCode == 0 && !report.InfraFailure {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	passed, failed, pending := report.Counts()
	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%s (%d workers)", plan.Mode.String(), plan.Workers),
		formatDuration(report.Duration),
		fmt.Sprintf("%d/%d/%d", passed, failed, pending),
		overallResultString(report),
		"",
	})

	t.Render()
}

// getResultString returns a short string representing one unit's result
func getResultString(outcome runner.UnitOutcome) string {
	switch {
	case outcome.Passed():
		return "✓ pass"
	case !outcome.Dispatched:
		return "- pending"
	default:
		return "✗ fail"
	}
}

func overallResultString(report *runner.RunReport) string {
	if report.ExitCode == 0 && !report.InfraFailure {
		return "✓ pass"
	}
	return "✗ fail"
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
