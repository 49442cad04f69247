package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "WD_ORCHESTRATOR"

var (
	Environments = &cli.StringFlag{
		Name:    "env",
		Aliases: []string{"e"},
		Value:   "default",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENV"),
		Usage:   "Environment id(s) to run against; comma-separate for parallel multi-environment runs (eg. 'dev,staging')",
	}
	EnvironmentsFile = &cli.StringFlag{
		Name:    "environments",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENVIRONMENTS"),
		Usage:   "Path to the environments settings file (eg. 'environments.yaml')",
	}
	SingleTest = &cli.StringFlag{
		Name:    "test",
		Aliases: []string{"t"},
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST"),
		Usage:   "Run a single test module; disables worker-pool and multi-environment modes",
	}
	TestCaseFilter = &cli.StringFlag{
		Name:    "testcase",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTCASE"),
		Usage:   "Run a single test case within the module given by --test; ignored otherwise",
	}
	Workers = &cli.StringFlag{
		Name:    "workers",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKERS"),
		Usage:   "Worker pool policy: omit to disable, 'auto' for one worker per host core, or a fixed count (eg. '4')",
	}
	SourceFolders = &cli.StringSliceFlag{
		Name:    "src",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SRC"),
		Usage:   "Source folder(s) from which to discover test modules (repeatable)",
	}
	LiveOutput = &cli.BoolFlag{
		Name:    "live-output",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIVE_OUTPUT"),
		Usage:   "Stream child output as it is produced instead of buffering per child",
	}
	Retries = &cli.IntFlag{
		Name:    "retries",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RETRIES"),
		Usage:   "Number of times a failed suite is re-run inside its work unit",
	}
	ServerManaged = &cli.BoolFlag{
		Name:    "server-managed",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVER_MANAGED"),
		Usage:   "Start and stop the WebDriver server locally for the duration of the run",
	}
	ServerCommand = &cli.StringFlag{
		Name:    "server-command",
		Value:   "selenium-server",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVER_COMMAND"),
		Usage:   "Command used to launch the managed WebDriver server",
	}
	ServerArgs = &cli.StringSliceFlag{
		Name:    "server-arg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVER_ARG"),
		Usage:   "Base CLI argument for the managed server as key=value (repeatable); per-environment args override key-by-key",
	}
	ServerHost = &cli.StringFlag{
		Name:    "server-host",
		Value:   "127.0.0.1",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVER_HOST"),
		Usage:   "Host of the WebDriver server",
	}
	ServerPort = &cli.IntFlag{
		Name:    "server-port",
		Value:   4444,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVER_PORT"),
		Usage:   "Port of the WebDriver server",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-child output logs",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between orchestrated runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary used to execute suite modules",
	}
	SuiteTimeout = &cli.DurationFlag{
		Name:    "suite-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE_TIMEOUT"),
		Usage:   "Timeout for a single suite execution inside a work unit (0 = none)",
	}
	// ParallelMode marks a spawned child; it is set by the orchestrator
	// itself when building child argument lists and never by operators.
	ParallelMode = &cli.BoolFlag{
		Name:    "parallel-mode",
		Value:   false,
		Hidden:  true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL_MODE"),
		Usage:   "Internal: this process is a spawned work unit",
	}
)

var requiredFlags = []cli.Flag{
	SourceFolders,
}

var optionalFlags = []cli.Flag{
	Environments,
	EnvironmentsFile,
	SingleTest,
	TestCaseFilter,
	Workers,
	LiveOutput,
	Retries,
	ServerManaged,
	ServerCommand,
	ServerArgs,
	ServerHost,
	ServerPort,
	LogDir,
	RunInterval,
	GoBinary,
	SuiteTimeout,
	ParallelMode,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
