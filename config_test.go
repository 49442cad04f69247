package orchestrator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/wdgrid/orchestrator/flags"
)

// configFromArgs runs the real flag set over args and resolves the Config.
func configFromArgs(t *testing.T, args []string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error

	app := cli.NewApp()
	app.Name = "wd-orchestrator"
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()), args)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"wd-orchestrator"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := configFromArgs(t, []string{"--src", "tests"})
	require.NoError(t, err)

	assert.Equal(t, []string{"default"}, cfg.Environments)
	assert.Equal(t, WorkersDisabled, cfg.WorkerPolicy.Mode)
	assert.True(t, cfg.RunOnce, "no interval means run-once")
	assert.Equal(t, "go", cfg.GoBinary)
	assert.Equal(t, "selenium-server", cfg.ServerCommand)
	assert.Equal(t, "127.0.0.1", cfg.ServerHost)
	assert.Equal(t, 4444, cfg.ServerPort)
	assert.False(t, cfg.ParallelMode)
	assert.True(t, filepath.IsAbs(cfg.SourceFolders[0]))
	assert.True(t, filepath.IsAbs(cfg.LogDir))
	assert.Equal(t, []string{"--src", "tests"}, cfg.RawArgs)
}

func TestNewConfigFullInvocation(t *testing.T) {
	cfg, err := configFromArgs(t, []string{
		"--src", "tests",
		"--env", "chrome, firefox,chrome,",
		"--workers", "auto",
		"--retries", "2",
		"--server-managed",
		"--server-arg", "port=4444",
		"--server-arg", "debug",
		"--run-interval", "30m",
		"--suite-timeout", "5m",
		"--parallel-mode",
	})
	require.NoError(t, err)

	// Comma-split, trimmed, deduplicated, order preserved.
	assert.Equal(t, []string{"chrome", "firefox"}, cfg.Environments)
	assert.Equal(t, WorkersAuto, cfg.WorkerPolicy.Mode)
	assert.Equal(t, 2, cfg.Retries)
	assert.True(t, cfg.ServerManaged)
	assert.Equal(t, map[string]string{"port": "4444", "debug": ""}, cfg.ServerArgs)
	assert.Equal(t, 30*time.Minute, cfg.RunInterval)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 5*time.Minute, cfg.SuiteTimeout)
	assert.True(t, cfg.ParallelMode)
}

func TestNewConfigMissingRequiredFlag(t *testing.T) {
	_, err := configFromArgs(t, []string{"--env", "chrome"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "src")
}

func TestNewConfigInvalidWorkers(t *testing.T) {
	_, err := configFromArgs(t, []string{"--src", "tests", "--workers", "many"})
	require.Error(t, err)

	_, err = configFromArgs(t, []string{"--src", "tests", "--workers", "0"})
	require.Error(t, err)
}

func TestNewConfigNegativeRetries(t *testing.T) {
	_, err := configFromArgs(t, []string{"--src", "tests", "--retries=-1"})
	require.Error(t, err)
}

func TestParseWorkerPolicy(t *testing.T) {
	tests := []struct {
		value   string
		want    WorkerPolicy
		wantErr bool
	}{
		{value: "", want: WorkerPolicy{Mode: WorkersDisabled}},
		{value: "auto", want: WorkerPolicy{Mode: WorkersAuto}},
		{value: "AUTO", want: WorkerPolicy{Mode: WorkersAuto}},
		{value: "4", want: WorkerPolicy{Mode: WorkersFixed, Count: 4}},
		{value: " 8 ", want: WorkerPolicy{Mode: WorkersFixed, Count: 8}},
		{value: "0", wantErr: true},
		{value: "-2", wantErr: true},
		{value: "many", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseWorkerPolicy(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitEnvironments(t *testing.T) {
	assert.Equal(t, []string{"chrome"}, splitEnvironments("chrome"))
	assert.Equal(t, []string{"chrome", "firefox"}, splitEnvironments("chrome,firefox"))
	assert.Equal(t, []string{"chrome", "firefox"}, splitEnvironments(" chrome , firefox ,chrome,"))
	assert.Nil(t, splitEnvironments(",,"))
}

func TestParseKeyValueArgs(t *testing.T) {
	args, err := parseKeyValueArgs([]string{"port=4444", "log=server.log", "debug"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"port":  "4444",
		"log":   "server.log",
		"debug": "",
	}, args)

	_, err = parseKeyValueArgs([]string{"=value"})
	require.Error(t, err)

	args, err = parseKeyValueArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, args)
}
