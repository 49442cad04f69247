package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRequiresCallback(t *testing.T) {
	s := NewDefaultRunScheduler(time.Minute, true, log.NewLogger(log.DiscardHandler()))
	require.Error(t, s.Start(context.Background()))
}

func TestSchedulerRunOnce(t *testing.T) {
	s := NewDefaultRunScheduler(0, true, log.NewLogger(log.DiscardHandler()))

	var calls atomic.Int32
	s.RegisterCallback(func() error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, int32(1), calls.Load(), "run-once mode runs the callback exactly once, synchronously")
}

func TestSchedulerRunOncePropagatesError(t *testing.T) {
	s := NewDefaultRunScheduler(0, true, log.NewLogger(log.DiscardHandler()))
	want := errors.New("boom")
	s.RegisterCallback(func() error { return want })

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, want)
}

func TestSchedulerPeriodicRuns(t *testing.T) {
	s := NewDefaultRunScheduler(20*time.Millisecond, false, log.NewLogger(log.DiscardHandler()))

	var calls atomic.Int32
	s.RegisterCallback(func() error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int32(1), "continuous mode runs immediately on startup")

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 5*time.Second, 10*time.Millisecond, "periodic runs must keep firing")

	require.NoError(t, s.Stop())
	assert.True(t, s.Stopped())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitForShutdown(ctx))
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewDefaultRunScheduler(time.Hour, false, log.NewLogger(log.DiscardHandler()))
	s.RegisterCallback(func() error { return nil })

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.True(t, s.Stopped())
}

func TestSchedulerContextCancellation(t *testing.T) {
	s := NewDefaultRunScheduler(time.Hour, false, log.NewLogger(log.DiscardHandler()))
	s.RegisterCallback(func() error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, s.WaitForShutdown(waitCtx))
	assert.True(t, s.Stopped())
}
