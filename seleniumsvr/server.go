// Package seleniumsvr owns the lifecycle of the external WebDriver protocol
// server (e.g. a local Selenium server) when the orchestrator manages it.
package seleniumsvr

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// ErrServerStart marks a fatal failure to bring the managed server up.
// Callers must not attempt Stop after a failed Start.
var ErrServerStart = fmt.Errorf("webdriver server failed to start")

// DefaultStartTimeout bounds how long Start waits for the server to accept
// connections.
const DefaultStartTimeout = 30 * time.Second

// Config holds the managed server configuration.
type Config struct {
	// Managed is false for remote grids and for spawned children, which never
	// re-manage the server; Start is then an immediate no-op success.
	Managed      bool
	Command      string
	Args         map[string]string // base CLI arguments
	Host         string
	Port         int
	StartTimeout time.Duration
	Log          log.Logger
}

// Manager starts and stops the external WebDriver server process. The
// ServerHandle (the underlying process) is exclusively owned by the Manager;
// at most one is live at a time.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	started bool
}

// NewManager creates a new server lifecycle manager.
func NewManager(cfg Config) *Manager {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	return &Manager{cfg: cfg}
}

// MergeArgs overlays per-environment arguments onto the base arguments
// key-by-key.
func MergeArgs(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Start spawns the managed server with the base arguments overridden
// key-by-key by extraArgs, then waits until it accepts TCP connections.
// It fully succeeds or conclusively fails before returning, so no work unit
// is ever dispatched against a half-started server. Not-managed
// configurations return immediately with success.
func (m *Manager) Start(extraArgs map[string]string) error {
	if !m.cfg.Managed {
		m.cfg.Log.Debug("WebDriver server not managed locally, skipping start")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.Wrap(ErrServerStart, "server already started")
	}

	args := renderArgs(MergeArgs(m.cfg.Args, extraArgs))
	cmd := exec.Command(m.cfg.Command, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	m.cfg.Log.Info("Starting WebDriver server", "command", m.cfg.Command, "args", args)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(ErrServerStart, "spawn failed: %v", err)
	}

	if err := m.awaitReady(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	m.cmd = cmd
	m.started = true
	m.cfg.Log.Info("WebDriver server ready", "addr", m.addr())
	return nil
}

// Stop terminates the server and awaits its exit, but only if this manager
// performed the start. It is idempotent and safe to call after a failed or
// skipped start.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		m.cfg.Log.Debug("WebDriver server was not started by this process, nothing to stop")
		return nil
	}

	m.cfg.Log.Info("Stopping WebDriver server")
	if err := m.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = m.cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- m.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		m.cfg.Log.Warn("WebDriver server did not exit in time, killing")
		_ = m.cmd.Process.Kill()
		<-done
	}

	m.cmd = nil
	m.started = false
	return nil
}

// Started reports whether this manager currently owns a live server.
func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Manager) addr() string {
	return net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
}

// awaitReady probes the server port with bounded exponential backoff.
func (m *Manager) awaitReady() error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = m.cfg.StartTimeout

	err := backoff.Retry(func() error {
		conn, err := net.DialTimeout("tcp", m.addr(), time.Second)
		if err != nil {
			return err
		}
		return conn.Close()
	}, policy)
	if err != nil {
		return errors.Wrapf(ErrServerStart, "server did not accept connections on %s within %v: %v",
			m.addr(), m.cfg.StartTimeout, err)
	}
	return nil
}

// renderArgs renders the argument map as --key=value flags, sorted for a
// stable command line. A key with an empty value becomes a bare flag.
func renderArgs(args map[string]string) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rendered := make([]string, 0, len(keys))
	for _, k := range keys {
		if args[k] == "" {
			rendered = append(rendered, fmt.Sprintf("--%s", k))
			continue
		}
		rendered = append(rendered, fmt.Sprintf("--%s=%s", k, args[k]))
	}
	return rendered
}
