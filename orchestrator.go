package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/wdgrid/orchestrator/environment"
	"github.com/wdgrid/orchestrator/exitcodes"
	"github.com/wdgrid/orchestrator/metrics"
	"github.com/wdgrid/orchestrator/runner"
	"github.com/wdgrid/orchestrator/seleniumsvr"
)

// Orchestrator implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Orchestrator{}

// ServerLifecycle is the slice of the WebDriver server manager the
// orchestrator drives: a start that fully succeeds or conclusively fails
// before any work unit is dispatched, and an idempotent stop.
type ServerLifecycle interface {
	Start(extraArgs map[string]string) error
	Stop() error
}

var _ ServerLifecycle = (*seleniumsvr.Manager)(nil)

// Orchestrator drives browser test suite runs. Depending on the plan it
// either executes suites in-process or spawns copies of itself, one per work
// unit, and supervises them to completion.
type Orchestrator struct {
	ctx       context.Context
	config    *Config
	version   string
	binary    string
	envs      *environment.Registry
	runner    runner.TestRunner
	server    ServerLifecycle
	planner   *ExecutionPlanner
	collector runner.ResultCollector
	scheduler RunScheduler
	report    *runner.RunReport

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Orchestrator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating orchestrator with config",
		"environments", config.Environments,
		"environmentsFile", config.EnvironmentsFile,
		"singleTest", config.SingleTestPath,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"parallelMode", config.ParallelMode)

	// Spawned children run exactly one unit and then exit. They never
	// reschedule and never touch the server lifecycle.
	if config.ParallelMode {
		config.RunOnce = true
	}

	envs, err := environment.NewRegistry(environment.Config{
		Log:              config.Log,
		EnvironmentsFile: config.EnvironmentsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create environment registry: %w", err)
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Log:      config.Log,
		GoBinary: config.GoBinary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	server := seleniumsvr.NewManager(seleniumsvr.Config{
		Managed: config.ServerManaged && !config.ParallelMode,
		Command: config.ServerCommand,
		Args:    config.ServerArgs,
		Host:    config.ServerHost,
		Port:    config.ServerPort,
		Log:     config.Log,
	})

	config.Log.Info("orchestrator.New: created environment registry and test runner")

	return &Orchestrator{
		ctx:              ctx,
		config:           config,
		version:          version,
		binary:           os.Args[0],
		envs:             envs,
		runner:           testRunner,
		server:           server,
		planner:          NewExecutionPlanner(config, envs, config.Log),
		collector:        runner.NewResultCollector(),
		scheduler:        NewDefaultRunScheduler(config.RunInterval, config.RunOnce, config.Log),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs orchestrated runs, either once or periodically at the
// configured interval.
// Start implements the cliapp.Lifecycle interface.
func (o *Orchestrator) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			o.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	o.ctx = ctx
	o.scheduler.RegisterCallback(o.runOrchestration)

	if err := o.scheduler.Start(ctx); err != nil {
		// Runtime errors (configuration issues, spawn failures, panics
		// inside the run) map to exit code 2
		o.config.Log.Error("Runtime error running orchestration", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, trigger shutdown and return
	if o.config.RunOnce {
		o.config.Log.Info("Run completed, exiting (run-once mode)")

		// Check if any unit failed and return the appropriate exit code
		if o.report != nil && o.report.ExitCode != 0 {
			o.config.Log.Warn("Run-once orchestration completed with failures, returning exit code 1")
			return NewUnitFailureError(o.report.String())
		}

		// Only need to call this when we're in run-once mode and all units passed
		go func() {
			o.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	o.config.Log.Debug("orchestrator started successfully")
	return nil
}

// runOrchestration plans and executes one full run and processes the results.
func (o *Orchestrator) runOrchestration() error {
	ctx, span := otel.Tracer("orchestrator").Start(o.ctx, "orchestrated run")
	defer span.End()

	plan, err := o.planner.Plan()
	if err != nil {
		metrics.RecordErrorDetails("plan", err)
		return err
	}

	runID := uuid.New().String()
	o.config.Log.Info("Starting orchestrated run",
		"run_id", runID, "mode", plan.Mode.String(), "environments", plan.Environments)
	start := time.Now()

	var report *runner.RunReport
	if plan.Mode == ModeSingle {
		report, err = o.runSingle(ctx, runID, plan)
	} else {
		report, err = o.runParallel(ctx, runID, plan)
	}
	if err != nil {
		// This is a runtime error (not a unit failure)
		metrics.RecordErrorDetails("orchestrated_run", err)
		o.config.Log.Error("Runtime error running orchestration", "error", err)
		return err
	}
	o.report = report

	// Spawned children keep stdout reserved for suite output; the parent
	// renders the combined summary.
	if !o.config.ParallelMode {
		o.printSummaryTable(report, plan)
		fmt.Println(report.String())
	}

	metrics.RecordRun(runID, plan.Mode.String(), report.ExitCode, report.Duration)
	o.config.Log.Info("Orchestrated run completed",
		"run_id", runID, "exit_code", report.ExitCode, "duration", time.Since(start))
	return nil
}

// runSingle executes suites in-process against exactly one environment. This
// is the path taken by explicit single-test invocations and by every spawned
// child.
func (o *Orchestrator) runSingle(ctx context.Context, runID string, plan *Plan) (*runner.RunReport, error) {
	env := plan.Environments[0]
	settings, err := o.envs.Resolve(env)
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	if err := o.server.Start(settings.ServerArgs); err != nil {
		return nil, NewRuntimeError(err)
	}
	defer func() {
		if err := o.server.Stop(); err != nil {
			o.config.Log.Error("Failed to stop server", "error", err)
		}
	}()

	var sources []string
	if o.config.SingleTestPath != "" {
		sources = []string{o.config.SingleTestPath}
	} else {
		sources, err = o.runner.ReadPaths(ctx, o.config.SourceFolders)
		if err != nil {
			return nil, NewDiscoveryError(err)
		}
	}

	// The test-case filter is only honored together with an explicit single
	// test; the planner has already warned when it is set without one.
	testCase := ""
	if o.config.SingleTestPath != "" {
		testCase = o.config.TestCaseFilter
	}

	report := o.collector.NewRunReport(runID)
	for _, source := range sources {
		result, err := o.runner.Run(ctx, source, runner.RunOptions{
			Environment: env,
			Settings:    settings,
			TestCase:    testCase,
			Retries:     o.config.Retries,
			ServerHost:  o.config.ServerHost,
			ServerPort:  o.config.ServerPort,
			Timeout:     o.config.SuiteTimeout,
		})
		if err != nil {
			return nil, NewRuntimeError(err)
		}

		for _, line := range result.Output {
			fmt.Fprintln(os.Stdout, line)
		}

		exitCode := 0
		if result.Status == runner.SuiteStatusFail {
			exitCode = 1
		}
		outcome := runner.UnitOutcome{
			Unit:       runner.ModuleUnit(source),
			Label:      source,
			Dispatched: true,
			ExitCode:   exitCode,
			Lines:      result.Output,
			Duration:   result.Duration,
		}
		o.collector.Merge(report, []runner.UnitOutcome{outcome})
		metrics.RecordUnit(runID, plan.Mode.String(), source, exitCode, result.Duration)
	}
	o.collector.Finalize(report)
	return report, nil
}

// runParallel spawns one child per work unit and supervises them. The server
// is running before the first child is created and is stopped only after the
// last child has exited.
func (o *Orchestrator) runParallel(ctx context.Context, runID string, plan *Plan) (*runner.RunReport, error) {
	var units []runner.WorkUnit
	limit := 0

	switch plan.Mode {
	case ModeMultiEnv:
		for _, env := range plan.Environments {
			units = append(units, runner.EnvironmentUnit(env))
		}
	case ModeWorkerPool:
		paths, err := o.runner.ReadPaths(ctx, o.config.SourceFolders)
		if err != nil {
			return nil, NewDiscoveryError(err)
		}
		if len(paths) == 0 {
			return nil, NewDiscoveryError(fmt.Errorf("no test modules found under %v", o.config.SourceFolders))
		}
		for _, path := range paths {
			units = append(units, runner.ModuleUnit(path))
		}
		limit = plan.Workers
	default:
		return nil, NewRuntimeError(fmt.Errorf("unexpected run mode %s", plan.Mode))
	}

	agg := runner.NewOutputAggregator(os.Stdout, o.config.LiveOutput)
	sup, err := runner.NewSupervisor(runner.SupervisorConfig{
		Log:        o.config.Log,
		Aggregator: agg,
		Binary:     o.binary,
		BaseArgs:   o.config.RawArgs,
	})
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	// Children never manage the server, so it must be up before any of them
	// starts. All environments share the one instance; its arguments come
	// from the default environment.
	defaults, err := o.envs.Resolve(environment.DefaultID)
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	if err := o.server.Start(defaults.ServerArgs); err != nil {
		return nil, NewRuntimeError(err)
	}

	queue := runner.NewWorkerQueue(sup, o.config.Log)
	outcomes := queue.Run(units, limit)

	if err := o.server.Stop(); err != nil {
		o.config.Log.Error("Failed to stop server", "error", err)
	}

	report := o.collector.NewRunReport(runID)
	o.collector.Merge(report, outcomes)
	o.collector.Finalize(report)

	agg.Flush()
	logDir := filepath.Join(o.config.LogDir, runID)
	if err := agg.WriteLogFiles(logDir); err != nil {
		o.config.Log.Error("Failed to write child log files", "dir", logDir, "error", err)
	}

	for _, outcome := range outcomes {
		metrics.RecordUnit(runID, plan.Mode.String(), outcome.Label, outcome.ExitCode, outcome.Duration)
	}
	return report, nil
}

// Stop stops the orchestrator service.
// Stop implements the cliapp.Lifecycle interface.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.config.Log.Info("Stopping orchestrator")

	if err := o.server.Stop(); err != nil {
		o.config.Log.Error("Failed to stop server", "error", err)
	}

	if err := o.scheduler.Stop(); err != nil {
		return err
	}

	o.config.Log.Info("orchestrator stopped successfully")
	return nil
}

// Stopped returns true if the orchestrator service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (o *Orchestrator) Stopped() bool {
	return o.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (o *Orchestrator) WaitForShutdown(ctx context.Context) error {
	return o.scheduler.WaitForShutdown(ctx)
}
