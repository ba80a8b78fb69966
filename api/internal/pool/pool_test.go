package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	tasks := make([]Task[int], 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return i, nil
		}
	}

	out := Run(context.Background(), 2, tasks)
	require.Len(t, out, 10)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(2), peak.Load(), "expected the cap to be reached")
	for i, o := range out {
		assert.NoError(t, o.Err)
		assert.Equal(t, i, o.Value)
	}
}

func TestRun_FailureIsolatedAndOrdered(t *testing.T) {
	boom := errors.New("boom")
	tasks := make([]Task[string], 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (string, error) {
			// later tasks finish first so completion order differs from input order
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			if i == 3 {
				return "", boom
			}
			return string(rune('a' + i)), nil
		}
	}

	out := Run(context.Background(), 4, tasks)
	require.Len(t, out, 10)
	assert.ErrorIs(t, out[3].Err, boom)
	for i, o := range out {
		if i == 3 {
			continue
		}
		assert.True(t, o.OK())
		assert.Equal(t, string(rune('a'+i)), o.Value)
	}
}

func TestRun_PanicCaptured(t *testing.T) {
	tasks := []Task[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { panic("kaput") },
		func(ctx context.Context) (int, error) { return 3, nil },
	}
	out := Run(context.Background(), 3, tasks)

	var pe *PanicError
	require.ErrorAs(t, out[1].Err, &pe)
	assert.Equal(t, "kaput", pe.Value)
	assert.Equal(t, 1, out[0].Value)
	assert.Equal(t, 3, out[2].Value)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var started sync.WaitGroup
	started.Add(1)
	release := make(chan struct{})

	tasks := []Task[int]{
		func(ctx context.Context) (int, error) {
			started.Done()
			<-release
			return 1, nil
		},
		func(ctx context.Context) (int, error) { return 2, nil },
	}

	done := make(chan []Outcome[int])
	go func() { done <- Run(ctx, 1, tasks) }()

	started.Wait()
	cancel()
	close(release)
	out := <-done

	assert.NoError(t, out[0].Err)
	assert.ErrorIs(t, out[1].Err, context.Canceled)
}

func TestRun_Empty(t *testing.T) {
	assert.Empty(t, Run[int](context.Background(), 3, nil))
}

func TestRun_ZeroLimitRunsSerially(t *testing.T) {
	var inFlight, peak atomic.Int32
	tasks := make([]Task[int], 4)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			if n := inFlight.Add(1); n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			return i, nil
		}
	}
	Run(context.Background(), 0, tasks)
	assert.Equal(t, int32(1), peak.Load())
}
