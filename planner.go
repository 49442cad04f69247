package orchestrator

import (
	"runtime"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/wdgrid/orchestrator/environment"
)

// RunMode selects how a run is executed.
type RunMode int

const (
	// ModeSingle executes one suite directly, with no child processes.
	ModeSingle RunMode = iota
	// ModeMultiEnv spawns one child per requested environment, fan-out
	// unbounded by any worker count.
	ModeMultiEnv
	// ModeWorkerPool distributes discovered test modules across W workers.
	ModeWorkerPool
)

func (m RunMode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeMultiEnv:
		return "multi-env"
	case ModeWorkerPool:
		return "worker-pool"
	default:
		return "unknown"
	}
}

// Plan is the resolved execution plan for one run.
type Plan struct {
	Mode         RunMode
	Environments []string // validated environment ids, in request order
	Workers      int      // concurrency ceiling; meaningful in worker-pool mode
}

// ExecutionPlanner chooses the run mode from the resolved configuration and
// validates it before any process or server is touched.
type ExecutionPlanner struct {
	cfg  *Config
	envs *environment.Registry
	log  log.Logger
}

// NewExecutionPlanner creates a planner over a resolved configuration.
func NewExecutionPlanner(cfg *Config, envs *environment.Registry, logger log.Logger) *ExecutionPlanner {
	if logger == nil {
		logger = log.New()
	}
	return &ExecutionPlanner{cfg: cfg, envs: envs, log: logger}
}

// Plan validates the requested environments and picks the run mode:
//
//   - an explicit single test path, a spawned child, or exactly one
//     environment with pooling disabled picks SINGLE
//   - more than one environment picks MULTI_ENV
//   - an enabled worker policy picks WORKER_POOL
//
// An explicit single test silently disables worker-pool and multi-env
// consideration. A test-case filter without an explicit single test is a
// non-fatal warning and the filter is ignored.
func (p *ExecutionPlanner) Plan() (*Plan, error) {
	for _, id := range p.cfg.Environments {
		if !p.envs.Has(id) {
			return nil, NewConfigurationError("unknown environment %q (known environments: %s)",
				id, strings.Join(p.envs.IDs(), ", "))
		}
	}

	if p.cfg.TestCaseFilter != "" && p.cfg.SingleTestPath == "" {
		p.log.Warn("--testcase is only honored together with --test; ignoring the filter",
			"testcase", p.cfg.TestCaseFilter)
	}

	plan := &Plan{Environments: p.cfg.Environments}
	switch {
	case p.cfg.ParallelMode:
		// Children never re-enter parallel modes.
		plan.Mode = ModeSingle
	case p.cfg.SingleTestPath != "":
		plan.Mode = ModeSingle
	case len(p.cfg.Environments) > 1:
		plan.Mode = ModeMultiEnv
	case p.cfg.WorkerPolicy.Mode != WorkersDisabled:
		plan.Mode = ModeWorkerPool
		plan.Workers = p.workerCount()
	default:
		plan.Mode = ModeSingle
	}

	p.log.Debug("Execution plan resolved", "mode", plan.Mode,
		"environments", strings.Join(plan.Environments, ","), "workers", plan.Workers)
	return plan, nil
}

func (p *ExecutionPlanner) workerCount() int {
	switch p.cfg.WorkerPolicy.Mode {
	case WorkersFixed:
		return p.cfg.WorkerPolicy.Count
	case WorkersAuto:
		return runtime.NumCPU()
	default:
		return 1
	}
}
