package orchestrator

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"
	"github.com/wdgrid/orchestrator/flags"
)

// WorkerPolicyMode selects how the worker pool is sized.
type WorkerPolicyMode int

const (
	WorkersDisabled WorkerPolicyMode = iota
	WorkersAuto
	WorkersFixed
)

// WorkerPolicy captures the requested worker-pool behaviour.
type WorkerPolicy struct {
	Mode  WorkerPolicyMode
	Count int // meaningful only when Mode == WorkersFixed
}

// ParseWorkerPolicy parses the --workers flag value: empty disables pooling,
// "auto" sizes the pool from the host core count, anything else must be a
// positive integer.
func ParseWorkerPolicy(value string) (WorkerPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return WorkerPolicy{Mode: WorkersDisabled}, nil
	case "auto":
		return WorkerPolicy{Mode: WorkersAuto}, nil
	default:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			return WorkerPolicy{}, fmt.Errorf("invalid worker count %q: must be 'auto' or a positive integer", value)
		}
		return WorkerPolicy{Mode: WorkersFixed, Count: n}, nil
	}
}

// Config holds the resolved run configuration. It is built once per
// invocation and read thereafter without mutation.
type Config struct {
	Environments     []string          // Requested environment ids, in request order
	EnvironmentsFile string            // Path to the environments settings file
	WorkerPolicy     WorkerPolicy      // disabled | auto | fixed N
	SingleTestPath   string            // Explicit single test module, if any
	TestCaseFilter   string            // Test case filter; only honored with SingleTestPath
	SourceFolders    []string          // Folders from which test modules are discovered
	LiveOutput       bool              // Stream child output instead of buffering
	Retries          int               // Suite re-runs inside a work unit
	ServerManaged    bool              // Whether this process owns the WebDriver server lifecycle
	ServerCommand    string            // Command launching the managed server
	ServerArgs       map[string]string // Base server CLI arguments
	ServerHost       string
	ServerPort       int
	LogDir           string        // Directory for per-child output logs
	RunInterval      time.Duration // Interval between runs; 0 = run once
	RunOnce          bool          // Exit after one orchestrated run
	GoBinary         string        // Go binary used to execute suite modules
	SuiteTimeout     time.Duration // Timeout for one suite execution
	ParallelMode     bool          // This process is a spawned work unit
	RawArgs          []string      // Original invocation arguments, for child passthrough
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger, rawArgs []string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	envList := splitEnvironments(ctx.String(flags.Environments.Name))
	if len(envList) == 0 {
		return nil, errors.New("at least one environment id is required")
	}

	policy, err := ParseWorkerPolicy(ctx.String(flags.Workers.Name))
	if err != nil {
		return nil, err
	}

	retries := ctx.Int(flags.Retries.Name)
	if retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", retries)
	}

	sourceFolders := ctx.StringSlice(flags.SourceFolders.Name)
	for i, folder := range sourceFolders {
		abs, err := filepath.Abs(folder)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for source folder '%s': %w", folder, err)
		}
		sourceFolders[i] = abs
	}

	serverArgs, err := parseKeyValueArgs(ctx.StringSlice(flags.ServerArgs.Name))
	if err != nil {
		return nil, err
	}

	envsFile := ctx.String(flags.EnvironmentsFile.Name)
	if envsFile != "" {
		envsFile, err = filepath.Abs(envsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for environments file: %w", err)
		}
	}

	logDir, err := filepath.Abs(ctx.String(flags.LogDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	return &Config{
		Environments:     envList,
		EnvironmentsFile: envsFile,
		WorkerPolicy:     policy,
		SingleTestPath:   ctx.String(flags.SingleTest.Name),
		TestCaseFilter:   ctx.String(flags.TestCaseFilter.Name),
		SourceFolders:    sourceFolders,
		LiveOutput:       ctx.Bool(flags.LiveOutput.Name),
		Retries:          retries,
		ServerManaged:    ctx.Bool(flags.ServerManaged.Name),
		ServerCommand:    ctx.String(flags.ServerCommand.Name),
		ServerArgs:       serverArgs,
		ServerHost:       ctx.String(flags.ServerHost.Name),
		ServerPort:       ctx.Int(flags.ServerPort.Name),
		LogDir:           logDir,
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		GoBinary:         ctx.String(flags.GoBinary.Name),
		SuiteTimeout:     ctx.Duration(flags.SuiteTimeout.Name),
		ParallelMode:     ctx.Bool(flags.ParallelMode.Name),
		RawArgs:          rawArgs,
		Log:              logger,
	}, nil
}

// splitEnvironments splits the comma-separated --env value, dropping empty
// entries and duplicates while preserving request order.
func splitEnvironments(value string) []string {
	seen := make(map[string]struct{})
	var envs []string
	for _, id := range strings.Split(value, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		envs = append(envs, id)
	}
	return envs
}

func parseKeyValueArgs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid server argument %q: expected key=value", pair)
		}
		if !found {
			value = ""
		}
		args[key] = strings.TrimSpace(value)
	}
	return args, nil
}
