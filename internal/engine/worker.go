package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

type cleanReturn struct {
	out Outcome
	err error
}

// WorkerSlot is one concurrent lane. It pulls items from a Dispatcher and
// cleans them one at a time until the dispatcher runs dry or it is cancelled.
type WorkerSlot struct {
	id      int
	cleaner Cleaner
	logger  *slog.Logger

	mu       sync.Mutex
	hard     context.CancelFunc
	graceful bool
	current  *WorkItem

	// cleans tracks clean goroutines, including ones a hard stop abandoned.
	cleans sync.WaitGroup
	done   chan struct{}
}

func NewWorkerSlot(id int, cleaner Cleaner, logger *slog.Logger) *WorkerSlot {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WorkerSlot{
		id:      id,
		cleaner: cleaner,
		logger:  logger.With(slog.Int("slot", id)),
		done:    make(chan struct{}),
	}
}

func (w *WorkerSlot) ID() int {
	return w.id
}

// Done is closed when Run returns.
func (w *WorkerSlot) Done() <-chan struct{} {
	return w.done
}

// Current returns the item being cleaned, if any.
func (w *WorkerSlot) Current() (WorkItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return WorkItem{}, false
	}
	return *w.current, true
}

// Run processes items until d is exhausted or the slot is cancelled. Every
// dispatched item yields exactly one call to onResult. Run must be called
// at most once.
func (w *WorkerSlot) Run(ctx context.Context, d *Dispatcher, onResult func(Result)) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	w.hard = cancel
	w.mu.Unlock()

	for {
		if w.stopRequested(ctx) {
			w.logger.Debug("slot stopping")
			return
		}

		item, ok := d.Next()
		if !ok {
			w.logger.Debug("dispatcher exhausted, slot idle")
			return
		}

		w.setCurrent(&item)
		res := w.process(ctx, item)
		w.setCurrent(nil)
		onResult(res)
	}
}

// Cancel asks the slot to stop requesting work. With hard set the in-flight
// clean is abandoned immediately and its output must be treated as
// discarded; otherwise it is allowed to finish.
func (w *WorkerSlot) Cancel(hard bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.graceful = true
	if hard && w.hard != nil {
		w.hard()
	}
}

// Settle blocks until every clean started by the slot has returned. After a
// hard stop this outlasts Done, since abandoned cleans keep running until
// they notice the cancellation.
func (w *WorkerSlot) Settle(ctx context.Context) error {
	settled := make(chan struct{})
	go func() {
		w.cleans.Wait()
		close(settled)
	}()
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WorkerSlot) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.graceful
}

func (w *WorkerSlot) setCurrent(item *WorkItem) {
	w.mu.Lock()
	w.current = item
	w.mu.Unlock()
}

func (w *WorkerSlot) process(ctx context.Context, item WorkItem) Result {
	start := time.Now()
	logger := w.logger.With(slog.String("input", item.Input))
	logger.Debug("cleaning")

	// The clean runs on its own goroutine so a hard stop can abandon it
	// even if the cleaner ignores ctx.
	ch := make(chan cleanReturn, 1)
	w.cleans.Add(1)
	go func() {
		defer w.cleans.Done()
		defer func() {
			if p := recover(); p != nil {
				ch <- cleanReturn{err: fmt.Errorf("cleaner panic: %v", p)}
			}
		}()
		out, err := w.cleaner.Clean(ctx, item.Input, item.Output)
		ch <- cleanReturn{out: out, err: err}
	}()

	var ret cleanReturn
	select {
	case ret = <-ch:
	case <-ctx.Done():
		logger.Debug("clean abandoned by hard stop")
		return CrashedResult(item, time.Since(start), &CleanError{Input: item.Input, Err: ErrHardStop})
	}

	elapsed := ret.out.Elapsed
	if elapsed <= 0 {
		elapsed = time.Since(start)
	}
	if ret.err != nil {
		logger.Warn("clean failed", slog.Any("error", ret.err))
		return CrashedResult(item, elapsed, &CleanError{Input: item.Input, Err: ret.err})
	}

	ret.out.Elapsed = elapsed
	res := NewResult(item, ret.out)
	logger.Debug("cleaned",
		slog.Int64("before", res.SizeBefore),
		slog.Int64("after", res.SizeAfter),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res
}
