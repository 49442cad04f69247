package runner

import "time"

// Suite execution constants
const (
	// DefaultSuiteTimeout is the default timeout for one suite execution
	DefaultSuiteTimeout = 10 * time.Minute

	// DefaultGoBinary is the default go binary name
	DefaultGoBinary = "go"

	// go test command arguments
	TestCommand = "test"
	JSONFlag    = "-json"
	VerboseFlag = "-v"
	TimeoutFlag = "-timeout"
	CountFlag   = "-count"
	RunFlag     = "-run"

	// Test count to disable caching
	DisableCacheCount = "1"

	// maxScanTokenSize bounds a single output line read from a child process
	maxScanTokenSize = 1024 * 1024
)

// Environment variables handed to suite processes. Suites read these to
// locate the WebDriver server and pick per-environment settings.
const (
	EnvVarEnvironment = "WD_ENVIRONMENT"
	EnvVarBrowser     = "WD_BROWSER"
	EnvVarBaseURL     = "WD_BASE_URL"
	EnvVarServerURL   = "WD_SERVER_URL"
	capabilityPrefix  = "WD_CAP_"
)
