package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ChildState tracks the lifecycle of one spawned child process.
type ChildState int

const (
	ChildSpawned ChildState = iota
	ChildRunning
	ChildExited
)

// ChildHandle tracks one spawned child: its display label, assigned color
// pair, buffered output and exit code. The running to finished transition
// happens exactly once.
type ChildHandle struct {
	Label  string
	Colors text.Colors

	mu        sync.Mutex
	state     ChildState
	exitCode  int
	startedAt time.Time

	finishOnce sync.Once
	lines      []string
}

func newChildHandle(label string, colors text.Colors) *ChildHandle {
	return &ChildHandle{Label: label, Colors: colors}
}

// Running reports whether the child has started and not yet exited.
func (h *ChildHandle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == ChildRunning
}

// ExitCode returns the recorded exit code; ok is false until the child exits.
func (h *ChildHandle) ExitCode() (code int, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.state == ChildExited
}

// Lines returns a copy of the child's buffered output lines, in emission order.
func (h *ChildHandle) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]string, len(h.lines))
	copy(cp, h.lines)
	return cp
}

func (h *ChildHandle) appendLine(line string) {
	h.mu.Lock()
	h.lines = append(h.lines, line)
	h.mu.Unlock()
}

func (h *ChildHandle) markRunning() {
	h.mu.Lock()
	h.state = ChildRunning
	h.startedAt = time.Now()
	h.mu.Unlock()
}

// finish records the exit code exactly once.
func (h *ChildHandle) finish(code int) {
	h.finishOnce.Do(func() {
		h.mu.Lock()
		h.state = ChildExited
		h.exitCode = code
		h.mu.Unlock()
	})
}

func (h *ChildHandle) duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startedAt.IsZero() {
		return 0
	}
	return time.Since(h.startedAt)
}

// Completion is the per-child result event delivered to the control loop.
type Completion struct {
	Unit     WorkUnit
	Handle   *ChildHandle
	ExitCode int
	Duration time.Duration
}

// basePalette is the fixed four-entry palette of {foreground, background}
// pairs children are labeled with; it is shuffled once per supervisor and
// reused round-robin when units outnumber entries.
var basePalette = []text.Colors{
	{text.FgBlack, text.BgRed},
	{text.FgBlack, text.BgYellow},
	{text.FgBlack, text.BgCyan},
	{text.FgBlack, text.BgGreen},
}

// Supervisor spawns, labels, colors and tracks child processes. Spawn and
// nextColors are only ever called from the worker queue's control loop, so
// palette rotation needs no locking.
type Supervisor struct {
	log      log.Logger
	agg      *OutputAggregator
	binary   string
	baseArgs []string
	palette  []text.Colors
	next     int
}

// SupervisorConfig holds configuration for creating a Supervisor.
type SupervisorConfig struct {
	Log        log.Logger
	Aggregator *OutputAggregator
	Binary     string   // orchestrator binary children re-invoke
	BaseArgs   []string // original invocation arguments, minus the program name
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("output aggregator is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	palette := make([]text.Colors, len(basePalette))
	copy(palette, basePalette)
	rand.Shuffle(len(palette), func(i, j int) {
		palette[i], palette[j] = palette[j], palette[i]
	})

	return &Supervisor{
		log:      cfg.Log.New("component", "supervisor"),
		agg:      cfg.Aggregator,
		binary:   cfg.Binary,
		baseArgs: cfg.BaseArgs,
		palette:  palette,
	}, nil
}

func (s *Supervisor) nextColors() text.Colors {
	colors := s.palette[s.next%len(s.palette)]
	s.next++
	return colors
}

// Spawn starts one child process for the given unit. The child re-invokes
// the orchestrator binary in single-run mode, scoped to one environment or
// one module. On success the completion event is later delivered on the
// completions channel; on error no event is ever delivered for this unit.
func (s *Supervisor) Spawn(unit WorkUnit, completions chan<- Completion) (*ChildHandle, error) {
	args := BuildChildArgs(s.baseArgs, unit)
	cmd := exec.Command(s.binary, args...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	handle := newChildHandle(unit.Label(), s.nextColors())

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return nil, fmt.Errorf("failed to spawn %s: %w", unit.Label(), err)
	}
	// Registered only once the process exists, so a failed spawn leaves no
	// empty labeled block in the flush output and no empty log file.
	s.agg.Register(handle)
	handle.markRunning()
	s.log.Debug("Spawned work unit", "unit", unit.Label(), "kind", unit.Kind, "pid", cmd.Process.Pid)

	go s.track(cmd, pr, pw, handle, unit, completions)
	return handle, nil
}

// track drains the child's combined output and delivers the completion event.
// It runs on its own goroutine; all bookkeeping goes through ChildHandle and
// the aggregator, both of which are safe for this.
func (s *Supervisor) track(cmd *exec.Cmd, pr *io.PipeReader, pw *io.PipeWriter, handle *ChildHandle, unit WorkUnit, completions chan<- Completion) {
	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		waitErr <- err
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		s.agg.Append(handle, scanner.Text())
	}
	_ = pr.Close()

	code := exitCodeFrom(<-waitErr)
	handle.finish(code)
	s.log.Debug("Work unit exited", "unit", unit.Label(), "exitCode", code)

	completions <- Completion{
		Unit:     unit,
		Handle:   handle,
		ExitCode: code,
		Duration: handle.duration(),
	}
}

func exitCodeFrom(err error) int {
	if err == nil {
		return 0
	}
	exitErr := &exec.ExitError{}
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	// The process never ran to a normal exit (e.g. wait failure).
	return -1
}

// flags replaced or dropped per child rather than forwarded
var (
	environmentFlagNames = []string{"--env", "-e"}
	testFlagNames        = []string{"--test", "-t", "--testcase"}
)

// BuildChildArgs rebuilds the invocation arguments for one child: all
// original arguments are forwarded except the environment-selection flag
// (replaced for environment units) or the explicit test-path flag (replaced
// for module units), plus the explicit parallel-mode marker. A test-case
// filter without an explicit single test is ignored by the parent, so it is
// dropped for module units; forwarding it would make the child honor it
// against its assigned --test module.
func BuildChildArgs(args []string, unit WorkUnit) []string {
	replaced := environmentFlagNames
	if unit.Kind == UnitModule {
		replaced = testFlagNames
	}

	out := make([]string, 0, len(args)+3)
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		if matchesFlag(arg, replaced) {
			if !strings.Contains(arg, "=") {
				skipNext = true
			}
			continue
		}
		if matchesFlag(arg, []string{"--parallel-mode"}) {
			continue
		}
		out = append(out, arg)
	}

	switch unit.Kind {
	case UnitEnvironment:
		out = append(out, "--env", unit.ID)
	case UnitModule:
		out = append(out, "--test", unit.ID)
	}
	return append(out, "--parallel-mode")
}

func matchesFlag(arg string, names []string) bool {
	for _, name := range names {
		if arg == name || strings.HasPrefix(arg, name+"=") {
			return true
		}
	}
	return false
}
