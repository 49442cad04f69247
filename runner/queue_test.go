package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, binary string, baseArgs []string) *WorkerQueue {
	t.Helper()
	sup, _ := newTestSupervisor(t, binary, baseArgs)
	return NewWorkerQueue(sup, log.NewLogger(log.DiscardHandler()))
}

func environmentUnits(ids ...string) []WorkUnit {
	units := make([]WorkUnit, 0, len(ids))
	for _, id := range ids {
		units = append(units, EnvironmentUnit(id))
	}
	return units
}

func TestRunEmptyQueue(t *testing.T) {
	q := newTestQueue(t, "/bin/sh", nil)
	assert.Nil(t, q.Run(nil, 4))
}

func TestRunAllUnitsPass(t *testing.T) {
	q := newTestQueue(t, "/bin/sh", []string{"-c", `echo "ran $1"; exit 0`})

	outcomes := q.Run(environmentUnits("chrome", "firefox", "safari"), 0)
	require.Len(t, outcomes, 3)

	// Outcomes come back in submission order regardless of finish order.
	assert.Equal(t, "chrome environment", outcomes[0].Label)
	assert.Equal(t, "firefox environment", outcomes[1].Label)
	assert.Equal(t, "safari environment", outcomes[2].Label)

	for _, o := range outcomes {
		assert.True(t, o.Dispatched)
		assert.True(t, o.Passed())
		assert.Equal(t, 0, o.ExitCode)
		require.Len(t, o.Lines, 1)
	}
	assert.Equal(t, []string{"ran chrome"}, outcomes[0].Lines)
	assert.Equal(t, []string{"ran safari"}, outcomes[2].Lines)
}

func TestRunFailedUnitDoesNotCancelSiblings(t *testing.T) {
	// The firefox child fails, everything else passes. Siblings must still
	// run to completion and report their own codes.
	q := newTestQueue(t, "/bin/sh",
		[]string{"-c", `if [ "$1" = firefox ]; then exit 3; fi; echo "ran $1"; exit 0`})

	outcomes := q.Run(environmentUnits("chrome", "firefox", "safari"), 0)
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Passed())
	assert.False(t, outcomes[1].Passed())
	assert.Equal(t, 3, outcomes[1].ExitCode)
	assert.True(t, outcomes[2].Passed())
	assert.Equal(t, []string{"ran safari"}, outcomes[2].Lines)
}

func TestRunSpawnErrorHaltsDispatch(t *testing.T) {
	q := newTestQueue(t, "/nonexistent/orchestrator-binary", nil)

	units := environmentUnits("chrome", "firefox", "safari")
	outcomes := q.Run(units, 1)
	require.Len(t, outcomes, 3)

	// The first unit consumed its dispatch attempt and failed to spawn.
	assert.True(t, outcomes[0].Dispatched)
	require.Error(t, outcomes[0].SpawnErr)
	assert.Equal(t, -1, outcomes[0].ExitCode)
	assert.False(t, outcomes[0].Passed())

	// Dispatch halted; the remaining units were never attempted.
	for _, o := range outcomes[1:] {
		assert.False(t, o.Dispatched)
		assert.NoError(t, o.SpawnErr)
	}
}

func TestRunConcurrencyCeiling(t *testing.T) {
	// Each child logs an enter and a leave marker around a short sleep. The
	// maximum nesting depth of the marker stream is the peak concurrency.
	marker := filepath.Join(t.TempDir(), "markers")
	script := fmt.Sprintf(`echo s >> %s; sleep 0.2; echo e >> %s`, marker, marker)
	q := newTestQueue(t, "/bin/sh", []string{"-c", script})

	outcomes := q.Run(environmentUnits("a", "b", "c", "d", "e"), 2)
	require.Len(t, outcomes, 5)
	for _, o := range outcomes {
		assert.True(t, o.Passed())
	}

	data, err := os.ReadFile(marker)
	require.NoError(t, err)

	depth, peak := 0, 0
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		switch line {
		case "s":
			depth++
			if depth > peak {
				peak = depth
			}
		case "e":
			depth--
		}
	}
	assert.LessOrEqual(t, peak, 2, "no more than the ceiling may run at once")
	assert.GreaterOrEqual(t, peak, 1)
}

func TestRunLimitClamping(t *testing.T) {
	// A ceiling above the unit count behaves like unbounded fan-out.
	q := newTestQueue(t, "/bin/sh", []string{"-c", "exit 0"})
	outcomes := q.Run(environmentUnits("chrome", "firefox"), 99)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Passed())
	}
}
