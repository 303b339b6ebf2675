package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sizedCleaner(before, after int64) Cleaner {
	return CleanerFunc(func(ctx context.Context, input, output string) (Outcome, error) {
		return Outcome{SizeBefore: before, SizeAfter: after, Elapsed: time.Millisecond}, nil
	})
}

func runSlot(t *testing.T, slot *WorkerSlot, d *Dispatcher) []Result {
	t.Helper()
	var got []Result
	slot.Run(context.Background(), d, func(r Result) { got = append(got, r) })
	select {
	case <-slot.Done():
	default:
		t.Fatal("slot not done after Run returned")
	}
	return got
}

func TestWorkerSlotDrainsDispatcher(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Reset(items(4)))

	got := runSlot(t, NewWorkerSlot(0, sizedCleaner(200, 50), nil), d)

	require.Len(t, got, 4)
	for i, r := range got {
		assert.Equal(t, i, r.Index)
		assert.False(t, r.Crashed)
		assert.InDelta(t, 25, r.CompressRatio, 1e-9)
		assert.Equal(t, time.Millisecond, r.Elapsed)
	}
	_, ok := d.Next()
	assert.False(t, ok)
}

func TestWorkerSlotContainsFailures(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	cleaner := CleanerFunc(func(ctx context.Context, input, output string) (Outcome, error) {
		calls++
		switch calls {
		case 1:
			return Outcome{SizeBefore: 10, SizeAfter: 9}, boom
		case 2:
			panic("cleaner exploded")
		default:
			return Outcome{SizeBefore: 10, SizeAfter: 5}, nil
		}
	})
	d := NewDispatcher()
	require.NoError(t, d.Reset(items(3)))

	got := runSlot(t, NewWorkerSlot(1, cleaner, nil), d)

	require.Len(t, got, 3)
	assert.True(t, got[0].Crashed)
	assert.ErrorIs(t, got[0].Err, boom)
	assert.Zero(t, got[0].SizeBefore)
	assert.Zero(t, got[0].SizeAfter)

	assert.True(t, got[1].Crashed)
	var cerr *CleanError
	require.ErrorAs(t, got[1].Err, &cerr)
	assert.Equal(t, got[1].InputPath, cerr.Input)
	assert.Contains(t, cerr.Error(), "cleaner exploded")

	assert.False(t, got[2].Crashed)
}

func TestWorkerSlotHardCancelAbandonsClean(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	cleaner := CleanerFunc(func(ctx context.Context, input, output string) (Outcome, error) {
		close(started)
		<-block // ignores ctx
		return Outcome{}, nil
	})
	d := NewDispatcher()
	require.NoError(t, d.Reset(items(3)))
	slot := NewWorkerSlot(0, cleaner, nil)

	results := make(chan Result, 3)
	go slot.Run(context.Background(), d, func(r Result) { results <- r })

	<-started
	current, ok := slot.Current()
	require.True(t, ok)
	assert.Equal(t, 0, current.Index)

	slot.Cancel(true)
	select {
	case <-slot.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slot did not tear down after hard cancel")
	}

	r := <-results
	assert.True(t, r.Crashed)
	assert.ErrorIs(t, r.Err, ErrHardStop)
	assert.Equal(t, 2, d.Remaining(), "no further work requested")
}

func TestWorkerSlotGracefulCancelFinishesItem(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	cleaner := CleanerFunc(func(ctx context.Context, input, output string) (Outcome, error) {
		started <- struct{}{}
		<-release
		return Outcome{SizeBefore: 4, SizeAfter: 2}, ctx.Err()
	})
	d := NewDispatcher()
	require.NoError(t, d.Reset(items(3)))
	slot := NewWorkerSlot(0, cleaner, nil)

	results := make(chan Result, 3)
	go slot.Run(context.Background(), d, func(r Result) { results <- r })

	<-started
	slot.Cancel(false)
	close(release)
	<-slot.Done()

	require.Len(t, results, 1)
	r := <-results
	assert.False(t, r.Crashed, "graceful cancel must not interrupt the clean")
	assert.Equal(t, 2, d.Remaining())
}
