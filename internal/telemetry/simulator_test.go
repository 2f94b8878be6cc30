package telemetry_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devilai/devil-console/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(telemetry.DefaultInterval)
		return t
	}
}

func newSimulator(seed uint64) *telemetry.Simulator {
	return telemetry.New(telemetry.Options{
		Rand: rand.New(rand.NewPCG(seed, seed+1)),
		Now:  fixedClock(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)),
	})
}

func TestInitializeWindow(t *testing.T) {
	sim := newSimulator(1)

	snap := sim.Snapshot()
	require.Len(t, snap.Series, telemetry.DefaultWindowSize)
	assert.Equal(t, "12:00:00", snap.Series[len(snap.Series)-1].Time)
	assert.Equal(t, "11:59:20", snap.Series[0].Time)

	for i := 1; i < len(snap.Series); i++ {
		prev, cur := snap.Series[i-1], snap.Series[i]
		assert.True(t, cur.Timestamp.After(prev.Timestamp))
		assert.Equal(t, 2*time.Second, cur.Timestamp.Sub(prev.Timestamp))
		assert.Greater(t, cur.Time, prev.Time)
	}
	for _, p := range snap.Series {
		assert.GreaterOrEqual(t, p.Load, 40)
		assert.Less(t, p.Load, 70)
		assert.GreaterOrEqual(t, p.Tokens, 500)
		assert.Less(t, p.Tokens, 1500)
	}
	assert.InDelta(t, 45.0, snap.Memory, 0)
	assert.Equal(t, 12, snap.PendingTasks)
}

func TestInitializeCustomWindow(t *testing.T) {
	sim := newSimulator(2)

	sim.Initialize(5)
	assert.Len(t, sim.Snapshot().Series, 5)

	sim.Initialize(0)
	assert.Len(t, sim.Snapshot().Series, telemetry.DefaultWindowSize)
}

func TestTickStaysInBounds(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		sim := newSimulator(seed)
		for i := 0; i < 2000; i++ {
			snap := sim.Tick()

			require.Len(t, snap.Series, telemetry.DefaultWindowSize)
			last := snap.Series[len(snap.Series)-1]
			require.GreaterOrEqual(t, last.Load, 10)
			require.LessOrEqual(t, last.Load, 95)
			require.GreaterOrEqual(t, last.Tokens, 100)
			require.LessOrEqual(t, last.Tokens, 4000)
			require.GreaterOrEqual(t, snap.Memory, 20.0)
			require.LessOrEqual(t, snap.Memory, 80.0)
			require.GreaterOrEqual(t, snap.PendingTasks, 0)
		}
	}
}

func TestTickSlidesWindow(t *testing.T) {
	sim := newSimulator(3)
	before := sim.Snapshot()

	after := sim.Tick()

	assert.Equal(t, before.Series[1:], after.Series[:len(after.Series)-1])
	last, prev := after.Series[len(after.Series)-1], before.Series[len(before.Series)-1]
	assert.LessOrEqual(t, abs(last.Load-prev.Load), 5)
	assert.LessOrEqual(t, abs(last.Tokens-prev.Tokens), 200)
	assert.True(t, last.Timestamp.After(prev.Timestamp))
}

func TestSnapshotIsACopy(t *testing.T) {
	sim := newSimulator(4)

	snap := sim.Snapshot()
	snap.Series[0].Load = -1

	assert.NotEqual(t, -1, sim.Snapshot().Series[0].Load)
}

func TestRunStopsOnCancel(t *testing.T) {
	sim := telemetry.New(telemetry.Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- telemetry.Run(ctx, sim, func(telemetry.Snapshot) error {
			if ticks.Add(1) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	n := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, ticks.Load())
	assert.Equal(t, int32(3), n)
}

func TestRunStopsOnPublishError(t *testing.T) {
	sim := telemetry.New(telemetry.Options{Interval: time.Millisecond})
	errGone := errors.New("client gone")

	err := telemetry.Run(context.Background(), sim, func(telemetry.Snapshot) error {
		return errGone
	})

	assert.ErrorIs(t, err, errGone)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
