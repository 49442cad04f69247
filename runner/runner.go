package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/mod/modfile"

	"github.com/wdgrid/orchestrator/environment"
)

// RunOptions parameterizes one non-parallel suite execution.
type RunOptions struct {
	Environment string
	Settings    environment.Settings
	TestCase    string // test case filter, only honored with an explicit single test
	Retries     int    // failed-suite re-runs
	ServerHost  string
	ServerPort  int
	Timeout     time.Duration
}

// TestRunner executes one non-parallel suite and enumerates test module
// paths. It is the collaborator the orchestrator consumes directly in single
// mode and recursively inside every spawned child.
type TestRunner interface {
	// Run executes the suite rooted at source against one environment.
	Run(ctx context.Context, source string, opts RunOptions) (*SuiteResult, error)

	// ReadPaths enumerates test module paths under the source folders for
	// worker-pool distribution.
	ReadPaths(ctx context.Context, folders []string) ([]string, error)
}

var _ TestRunner = (*goTestRunner)(nil)

// goTestRunner runs suite modules through `go test -json`.
type goTestRunner struct {
	log      log.Logger
	goBinary string
	parser   *outputParser
	tracer   trace.Tracer
}

// Config holds configuration for creating a new test runner
type Config struct {
	Log      log.Logger
	GoBinary string
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = DefaultGoBinary
	}

	return &goTestRunner{
		log:      cfg.Log.New("component", "test-runner"),
		goBinary: cfg.GoBinary,
		parser:   newOutputParser(),
		tracer:   otel.Tracer("suite runner"),
	}, nil
}

// Run executes the suite once, re-running it up to opts.Retries times while
// it keeps failing. A retried suite still occupies its single work unit.
func (r *goTestRunner) Run(ctx context.Context, source string, opts RunOptions) (*SuiteResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", source))
	defer span.End()

	attempts := opts.Retries + 1
	var result *SuiteResult
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		result, err = r.runOnce(ctx, source, opts)
		if err != nil {
			return nil, err
		}
		if result.Status != SuiteStatusFail {
			break
		}
		if attempt < attempts {
			r.log.Warn("Suite failed, retrying", "source", source, "attempt", attempt, "maxAttempts", attempts)
		}
	}
	return result, nil
}

func (r *goTestRunner) runOnce(ctx context.Context, source string, opts RunOptions) (*SuiteResult, error) {
	args := r.buildTestArgs(source, opts)
	cmd := exec.CommandContext(ctx, r.goBinary, args...)
	cmd.Env = r.buildSuiteEnv(opts)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open suite output pipe: %w", err)
	}
	// Interleave stderr with the JSON stream; the parser keeps non-event
	// lines as plain output.
	cmd.Stderr = cmd.Stdout

	r.log.Debug("Running suite", "source", source, "environment", opts.Environment, "args", strings.Join(args, " "))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start suite process: %w", err)
	}

	result := r.parser.Parse(stdout)
	runErr := cmd.Wait()
	result.Duration = time.Since(start)

	// A plain nonzero exit is the expected shape of a failed suite; anything
	// the parser already classified stands. Only a start/wait level problem
	// is an infrastructure error.
	if runErr != nil && exitCodeFrom(runErr) == -1 {
		return nil, fmt.Errorf("suite process failed: %w", runErr)
	}
	if runErr != nil && result.Status == SuiteStatusPass {
		result.Status = SuiteStatusFail
	}
	return result, nil
}

func (r *goTestRunner) buildTestArgs(source string, opts RunOptions) []string {
	args := []string{TestCommand, JSONFlag, VerboseFlag, CountFlag, DisableCacheCount}
	if opts.Timeout > 0 {
		args = append(args, TimeoutFlag, opts.Timeout.String())
	}
	if opts.TestCase != "" {
		args = append(args, RunFlag, fmt.Sprintf("^%s$", opts.TestCase))
	}
	return append(args, source)
}

// buildSuiteEnv hands the suite process its WebDriver coordinates and the
// resolved per-environment settings.
func (r *goTestRunner) buildSuiteEnv(opts RunOptions) []string {
	env := os.Environ()
	env = append(env,
		fmt.Sprintf("%s=%s", EnvVarEnvironment, opts.Environment),
		fmt.Sprintf("%s=http://%s:%d/wd/hub", EnvVarServerURL, opts.ServerHost, opts.ServerPort),
	)
	if opts.Settings.Browser != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvVarBrowser, opts.Settings.Browser))
	}
	if opts.Settings.BaseURL != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvVarBaseURL, opts.Settings.BaseURL))
	}
	for key, value := range opts.Settings.Capabilities {
		env = append(env, fmt.Sprintf("%s%s=%s", capabilityPrefix, strings.ToUpper(key), value))
	}
	for key, value := range opts.Settings.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}
	return env
}

// ReadPaths walks the source folders and returns every directory containing
// test files, sorted. Each folder must live inside a Go module; the module
// path is resolved from go.mod so discovery can report package identities.
func (r *goTestRunner) ReadPaths(ctx context.Context, folders []string) ([]string, error) {
	if len(folders) == 0 {
		return nil, fmt.Errorf("no source folders configured")
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		modulePath, err := resolveModulePath(folder)
		if err != nil {
			return nil, err
		}

		err = filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), "_test.go") {
				return nil
			}
			dir := filepath.Dir(path)
			if _, ok := seen[dir]; !ok {
				seen[dir] = struct{}{}
				paths = append(paths, dir)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read source folder %s: %w", folder, err)
		}
		r.log.Debug("Discovered test modules", "folder", folder, "module", modulePath, "found", len(paths))
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no test modules found under %s", strings.Join(folders, ", "))
	}
	sort.Strings(paths)
	return paths, nil
}

// resolveModulePath finds the enclosing go.mod of a folder and returns its
// module path.
func resolveModulePath(folder string) (string, error) {
	dir := folder
	for {
		goModPath := filepath.Join(dir, "go.mod")
		data, err := os.ReadFile(goModPath)
		if err == nil {
			modFile, err := modfile.Parse(goModPath, data, nil)
			if err != nil {
				return "", fmt.Errorf("failed to parse %s: %w", goModPath, err)
			}
			if modFile.Module == nil || modFile.Module.Mod.Path == "" {
				return "", fmt.Errorf("could not find module name in %s", goModPath)
			}
			return modFile.Module.Mod.Path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("source folder %s is not inside a Go module", folder)
		}
		dir = parent
	}
}
