package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	require.Equal(t, StateIdle, c.State())
}

// collect reads events up to and including the next EventFinished.
func collect(t *testing.T, events <-chan Event) (results []Event, finished Event) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventFinished {
				return results, ev
			}
			results = append(results, ev)
		case <-timeout:
			t.Fatal("no finished event")
		}
	}
}

func assertNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

// blockingCleaner signals on started for every clean and blocks until the
// input's gate is closed or ctx is done.
type blockingCleaner struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	started chan string
}

func newBlockingCleaner() *blockingCleaner {
	return &blockingCleaner{gates: map[string]chan struct{}{}, started: make(chan string, 64)}
}

func (b *blockingCleaner) gate(input string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gates[input]
	if !ok {
		g = make(chan struct{})
		b.gates[input] = g
	}
	return g
}

func (b *blockingCleaner) Clean(ctx context.Context, input, output string) (Outcome, error) {
	b.started <- input
	select {
	case <-b.gate(input):
		return Outcome{SizeBefore: 100, SizeAfter: 40}, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func TestControllerOutOfOrderCompletion(t *testing.T) {
	work := items(5)
	// The lane holding item 0 is released only once the other lane has
	// delivered item 2 and moved on to item 3.
	item3Started := make(chan struct{})
	cleaner := CleanerFunc(func(ctx context.Context, input, output string) (Outcome, error) {
		switch input {
		case work[0].Input:
			<-item3Started
		case work[3].Input:
			close(item3Started)
		}
		return Outcome{SizeBefore: 1000, SizeAfter: 250}, nil
	})
	events := make(chan Event, 64)
	c := NewController(cleaner, Options{Events: events, Window: 3})

	require.NoError(t, c.Start(context.Background(), work, 2))
	waitIdle(t, c)

	results, finished := collect(t, events)
	require.Len(t, results, 5)
	assert.Equal(t, FinishCompleted, finished.Reason)
	assert.Equal(t, 5, finished.Stats.Cleaned)
	assertNoEvent(t, events)

	order := map[int]int{}
	for pos, ev := range results {
		order[ev.Result.Index] = pos
	}
	require.Len(t, order, 5, "every item delivered exactly once")
	assert.Less(t, order[2], order[0])

	snap := c.Stats()
	assert.Equal(t, 5, snap.Cleaned)
	assert.Equal(t, int64(5000), snap.TotalInputBytes)
	assert.Equal(t, 0, c.Dispatcher().Remaining())
	_, ok := c.Dispatcher().Next()
	assert.False(t, ok)

	assert.Equal(t, 5, c.Window().Len())
	assert.Len(t, c.Window().VisibleSlice(), 3)
}

func TestControllerStopDuringRun(t *testing.T) {
	b := newBlockingCleaner()
	events := make(chan Event, 64)
	c := NewController(b, Options{Events: events})

	require.NoError(t, c.Start(context.Background(), items(5), 2))
	<-b.started
	<-b.started
	require.Equal(t, StateRunning, c.State())

	require.NoError(t, c.Stop())
	remaining := c.Dispatcher().Remaining()
	assert.Equal(t, 3, remaining)
	waitIdle(t, c)

	results, finished := collect(t, events)
	assert.Empty(t, results, "no results delivered from terminated lanes")
	assert.Equal(t, FinishStopped, finished.Reason)
	assertNoEvent(t, events)
	assert.Equal(t, 0, c.Stats().Observed())
	assert.Equal(t, remaining, c.Dispatcher().Remaining())
	assert.Equal(t, 0, c.Window().Len())
}

func TestControllerStateErrors(t *testing.T) {
	b := newBlockingCleaner()
	c := NewController(b, Options{})

	err := c.Stop()
	require.ErrorIs(t, err, ErrInvalidState)
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StateIdle, serr.State)

	require.NoError(t, c.Start(context.Background(), items(2), 1))
	<-b.started

	err = c.Start(context.Background(), items(1), 1)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, strings.Contains(err.Error(), "running"))
	assert.Equal(t, 2, c.Dispatcher().Len(), "failed start must not touch the dispatcher")

	require.NoError(t, c.Stop())
	waitIdle(t, c)
	assert.ErrorIs(t, c.Stop(), ErrInvalidState)
}

func TestControllerRestartAfterCompletion(t *testing.T) {
	events := make(chan Event, 64)
	c := NewController(sizedCleaner(10, 5), Options{Events: events})

	require.NoError(t, c.Start(context.Background(), items(3), 8))
	waitIdle(t, c)
	require.NoError(t, c.Start(context.Background(), items(2), 8))
	waitIdle(t, c)

	_, first := collect(t, events)
	_, second := collect(t, events)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 2, c.Stats().Cleaned, "stats reset between runs")
	assert.Equal(t, 2, c.Window().Len())
}

func TestControllerEmptyRun(t *testing.T) {
	events := make(chan Event, 4)
	c := NewController(sizedCleaner(1, 1), Options{Events: events})

	require.NoError(t, c.Start(context.Background(), nil, 4))
	waitIdle(t, c)

	results, finished := collect(t, events)
	assert.Empty(t, results)
	assert.Equal(t, FinishCompleted, finished.Reason)
}

func TestControllerCountsCrashes(t *testing.T) {
	boom := errors.New("boom")
	cleaner := CleanerFunc(func(ctx context.Context, input, output string) (Outcome, error) {
		if strings.HasPrefix(input, "b") || strings.HasPrefix(input, "d") {
			return Outcome{}, boom
		}
		return Outcome{SizeBefore: 10, SizeAfter: 5}, nil
	})
	events := make(chan Event, 64)
	c := NewController(cleaner, Options{Events: events, Window: 10})

	require.NoError(t, c.Start(context.Background(), items(6), 3))
	waitIdle(t, c)

	snap := c.Stats()
	assert.Equal(t, 2, snap.Crashed)
	assert.Equal(t, 4, snap.Cleaned)
	assert.Equal(t, 6, snap.Observed())
	assert.Equal(t, int64(40), snap.TotalInputBytes)

	crashed := 0
	for _, r := range c.Window().VisibleSlice() {
		if r.Crashed {
			crashed++
			assert.ErrorIs(t, r.Err, boom)
		}
	}
	assert.Equal(t, 2, crashed, "crashed results occupy the window like any other")

	results, finished := collect(t, events)
	assert.Len(t, results, 6)
	assert.Equal(t, 2, finished.Stats.Crashed)
	assertNoEvent(t, events)
}

func TestControllerGracefulShutdown(t *testing.T) {
	b := newBlockingCleaner()
	events := make(chan Event, 64)
	c := NewController(b, Options{Events: events})
	work := items(4)

	require.NoError(t, c.Start(context.Background(), work, 2))
	first, second := <-b.started, <-b.started

	done := make(chan error, 1)
	go func() { done <- c.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool { return c.State() == StateStopping }, time.Second, time.Millisecond)
	close(b.gate(first))
	close(b.gate(second))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}
	assert.Equal(t, StateIdle, c.State())

	results, finished := collect(t, events)
	assert.Len(t, results, 2, "in-flight items finish during shutdown")
	for _, ev := range results {
		assert.False(t, ev.Result.Crashed)
	}
	assert.Equal(t, FinishShutdown, finished.Reason)
	assert.Equal(t, 2, c.Dispatcher().Remaining())

	assert.ErrorIs(t, c.Start(context.Background(), work, 1), ErrClosed)
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestControllerContextCancelStops(t *testing.T) {
	b := newBlockingCleaner()
	c := NewController(b, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, items(3), 1))
	<-b.started
	cancel()

	waitIdle(t, c)
	assert.Equal(t, 0, c.Stats().Observed())
	assert.Equal(t, 2, c.Dispatcher().Remaining())
}

func TestControllerUndrainedEventsDoNotStallLanes(t *testing.T) {
	var cleaned atomic.Int32
	cleaner := CleanerFunc(func(ctx context.Context, input, output string) (Outcome, error) {
		cleaned.Add(1)
		return Outcome{SizeBefore: 10, SizeAfter: 5}, nil
	})
	events := make(chan Event)
	c := NewController(cleaner, Options{Events: events, Window: 3})

	require.NoError(t, c.Start(context.Background(), items(6), 1))
	waitIdle(t, c)

	assert.Equal(t, int32(6), cleaned.Load())
	assert.Equal(t, 6, c.Stats().Cleaned)
	assert.Equal(t, 0, c.Dispatcher().Remaining())
	assert.Equal(t, 6, c.Window().Len())

	// progress was dropped; the finished event still arrives once read
	_, finished := collect(t, events)
	assert.Equal(t, FinishCompleted, finished.Reason)
	assert.Equal(t, 6, finished.Stats.Cleaned)
}

func TestControllerFinishedPrecedesNextRun(t *testing.T) {
	events := make(chan Event, 1)
	c := NewController(sizedCleaner(10, 5), Options{Events: events})

	require.NoError(t, c.Start(context.Background(), items(3), 1))
	waitIdle(t, c)
	require.NoError(t, c.Start(context.Background(), items(2), 1))
	waitIdle(t, c)

	var runs []string
	for len(runs) < 2 {
		results, finished := collect(t, events)
		for _, ev := range results {
			assert.Equal(t, finished.RunID, ev.RunID, "results belong to the run that finishes next")
		}
		runs = append(runs, finished.RunID)
	}
	assert.NotEqual(t, runs[0], runs[1])
}

func TestControllerSettleWaitsForAbandonedCleans(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	returned := make(chan struct{})
	cleaner := CleanerFunc(func(ctx context.Context, input, output string) (Outcome, error) {
		started <- struct{}{}
		<-release
		close(returned)
		return Outcome{}, nil
	})
	c := NewController(cleaner, Options{})

	require.NoError(t, c.Start(context.Background(), items(1), 1))
	<-started
	require.NoError(t, c.Stop())
	waitIdle(t, c)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.Settle(short), context.DeadlineExceeded)

	close(release)
	require.NoError(t, c.Settle(context.Background()))
	select {
	case <-returned:
	default:
		t.Fatal("settle returned before the clean did")
	}
}
