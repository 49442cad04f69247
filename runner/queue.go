package runner

import (
	"github.com/ethereum/go-ethereum/log"
)

// WorkerQueue drains a queue of pending work units through the supervisor
// with a concurrency ceiling. It is a sliding-window pool: as soon as one
// child finishes, the next pending unit is dispatched. The live set, the
// pending cursor and the outcome list are all owned by the single control
// loop in Run, so completion accounting cannot race.
type WorkerQueue struct {
	sup *Supervisor
	log log.Logger
}

// NewWorkerQueue creates a queue dispatching through sup.
func NewWorkerQueue(sup *Supervisor, logger log.Logger) *WorkerQueue {
	if logger == nil {
		logger = log.New()
	}
	return &WorkerQueue{sup: sup, log: logger.New("component", "worker-queue")}
}

// Run dispatches units with at most limit children running simultaneously
// (limit <= 0 means unbounded fan-out, used by multi-environment mode) and
// blocks until every dispatched child has finished. Outcomes are returned in
// unit submission order.
//
// A nonzero child exit marks that unit failed but never cancels siblings.
// A spawn failure is recorded as that unit's failure and halts further
// dispatch from the pending queue; children already running drain normally.
func (q *WorkerQueue) Run(units []WorkUnit, limit int) []UnitOutcome {
	if len(units) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(units) {
		limit = len(units)
	}
	q.log.Info("Dispatching work units", "units", len(units), "concurrency", limit)

	// Buffered to the unit count so a tracking goroutine can always deliver
	// its completion without blocking.
	completions := make(chan Completion, len(units))

	outcomes := make([]UnitOutcome, len(units))
	index := make(map[string]int, len(units))
	for i, u := range units {
		index[u.Label()] = i
		outcomes[i] = UnitOutcome{Unit: u, Label: u.Label()}
	}

	live := make(map[string]*ChildHandle, limit)
	next := 0
	halted := false

	dispatch := func() {
		for !halted && next < len(units) && len(live) < limit {
			unit := units[next]
			next++
			handle, err := q.sup.Spawn(unit, completions)
			i := index[unit.Label()]
			outcomes[i].Dispatched = true
			if err != nil {
				q.log.Error("Failed to spawn work unit; halting further dispatch",
					"unit", unit.Label(), "error", err)
				outcomes[i].SpawnErr = err
				outcomes[i].ExitCode = -1
				halted = true
				return
			}
			live[unit.Label()] = handle
		}
	}

	dispatch()

	// The run is complete exactly when the live set is empty. Children finish
	// out of order, so completion is detected by scanning the live set rather
	// than assuming FIFO ordering.
	for len(live) > 0 {
		c := <-completions
		delete(live, c.Handle.Label)

		i := index[c.Unit.Label()]
		outcomes[i].ExitCode = c.ExitCode
		outcomes[i].Lines = c.Handle.Lines()
		outcomes[i].Duration = c.Duration

		if c.ExitCode != 0 {
			q.log.Warn("Work unit failed", "unit", c.Unit.Label(), "exitCode", c.ExitCode)
		} else {
			q.log.Debug("Work unit passed", "unit", c.Unit.Label(), "duration", c.Duration)
		}

		if !halted {
			dispatch()
		}
	}

	q.log.Info("All work units finished", "units", len(units))
	return outcomes
}
