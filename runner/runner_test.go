package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdgrid/orchestrator/environment"
)

func newGoTestRunner(t *testing.T, goBinary string) *goTestRunner {
	t.Helper()
	r, err := NewTestRunner(Config{
		Log:      log.NewLogger(log.DiscardHandler()),
		GoBinary: goBinary,
	})
	require.NoError(t, err)
	return r.(*goTestRunner)
}

// writeFakeGoBinary writes an executable script standing in for the go
// binary, so suite execution can be exercised without a real toolchain run.
func writeFakeGoBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-go")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func initSuiteModule(t *testing.T, withTests bool) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/suites\n\ngo 1.21\n"), 0o644)
	require.NoError(t, err)

	if withTests {
		for _, sub := range []string{"login", "checkout"} {
			subDir := filepath.Join(dir, sub)
			require.NoError(t, os.MkdirAll(subDir, 0o755))
			err = os.WriteFile(filepath.Join(subDir, sub+"_test.go"),
				[]byte("package "+sub+"_test\n"), 0o644)
			require.NoError(t, err)
		}
		// A directory without test files must not be discovered.
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "helpers"), 0o755))
	}
	return dir
}

func TestReadPaths(t *testing.T) {
	dir := initSuiteModule(t, true)
	r := newGoTestRunner(t, "go")

	paths, err := r.ReadPaths(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "checkout"),
		filepath.Join(dir, "login"),
	}, paths, "paths are sorted and helper dirs are skipped")
}

func TestReadPathsNoTests(t *testing.T) {
	dir := initSuiteModule(t, false)
	r := newGoTestRunner(t, "go")

	_, err := r.ReadPaths(context.Background(), []string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no test modules found")
}

func TestReadPathsOutsideModule(t *testing.T) {
	r := newGoTestRunner(t, "go")
	_, err := r.ReadPaths(context.Background(), []string{"/proc"})
	require.Error(t, err)
}

func TestBuildTestArgs(t *testing.T) {
	r := newGoTestRunner(t, "go")

	args := r.buildTestArgs("./suites/login", RunOptions{})
	assert.Equal(t, []string{"test", "-json", "-v", "-count", "1", "./suites/login"}, args)

	args = r.buildTestArgs("./suites/login", RunOptions{
		TestCase: "TestLogin",
		Timeout:  2 * time.Minute,
	})
	assert.Equal(t, []string{"test", "-json", "-v", "-count", "1", "-timeout", "2m0s", "-run", "^TestLogin$", "./suites/login"}, args)
}

func TestBuildSuiteEnv(t *testing.T) {
	r := newGoTestRunner(t, "go")

	env := r.buildSuiteEnv(RunOptions{
		Environment: "chrome",
		ServerHost:  "127.0.0.1",
		ServerPort:  4444,
		Settings: environment.Settings{
			Browser: "chrome",
			BaseURL: "https://staging.example.com",
			Capabilities: map[string]string{
				"headless": "true",
			},
			Env: map[string]string{
				"SUITE_EXTRA": "1",
			},
		},
	})

	assert.Contains(t, env, "WD_ENVIRONMENT=chrome")
	assert.Contains(t, env, "WD_SERVER_URL=http://127.0.0.1:4444/wd/hub")
	assert.Contains(t, env, "WD_BROWSER=chrome")
	assert.Contains(t, env, "WD_BASE_URL=https://staging.example.com")
	assert.Contains(t, env, "WD_CAP_HEADLESS=true")
	assert.Contains(t, env, "SUITE_EXTRA=1")
}

func TestRunParsesSuiteOutput(t *testing.T) {
	fakeGo := writeFakeGoBinary(t, `
echo '{"Action":"pass","Package":"example.com/suites/login","Test":"TestLogin","Elapsed":0.1}'
echo '{"Action":"pass","Package":"example.com/suites/login","Elapsed":0.2}'
exit 0`)
	r := newGoTestRunner(t, fakeGo)

	result, err := r.Run(context.Background(), "./login", RunOptions{Environment: "chrome"})
	require.NoError(t, err)
	assert.Equal(t, SuiteStatusPass, result.Status)
	assert.Equal(t, 1, result.Passed)
}

func TestRunRetriesFailedSuite(t *testing.T) {
	// Fails on the first attempt, passes on the second. The marker file
	// records how many attempts ran.
	marker := filepath.Join(t.TempDir(), "attempts")
	fakeGo := writeFakeGoBinary(t, fmt.Sprintf(`
echo x >> %s
if [ "$(wc -l < %s)" -gt 1 ]; then
  echo '{"Action":"pass","Package":"p","Test":"TestLogin"}'
  exit 0
fi
echo '{"Action":"fail","Package":"p","Test":"TestLogin"}'
exit 1`, marker, marker))
	r := newGoTestRunner(t, fakeGo)

	result, err := r.Run(context.Background(), "./login", RunOptions{Retries: 2})
	require.NoError(t, err)
	assert.Equal(t, SuiteStatusPass, result.Status)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "x\nx\n", string(data), "the suite must have run exactly twice")
}

func TestRunExhaustedRetriesStaysFailed(t *testing.T) {
	fakeGo := writeFakeGoBinary(t, `
echo '{"Action":"fail","Package":"p","Test":"TestLogin"}'
exit 1`)
	r := newGoTestRunner(t, fakeGo)

	result, err := r.Run(context.Background(), "./login", RunOptions{Retries: 1})
	require.NoError(t, err)
	assert.Equal(t, SuiteStatusFail, result.Status)
	assert.Equal(t, 1, result.Failed)
}

func TestRunMissingBinaryIsInfraError(t *testing.T) {
	r := newGoTestRunner(t, "/nonexistent/go-binary")
	_, err := r.Run(context.Background(), "./login", RunOptions{})
	require.Error(t, err)
}
