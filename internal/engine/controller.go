package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type EventKind int

const (
	EventResult EventKind = iota
	EventFinished
)

// Event is published on the controller's event channel after every
// delivered result and once when a run finishes.
type Event struct {
	Kind          EventKind
	RunID         string
	Result        Result
	Stats         StatsSnapshot
	Total         int
	WindowChanged bool
	Reason        FinishReason
}

type Options struct {
	Logger *slog.Logger
	// Events receives run progress. EventResult is dropped when the channel
	// is full, so a slow consumer misses progress but never holds up the
	// run; Stats and Window stay current regardless. The EventFinished of a
	// run is always delivered, after its results, and no event of the next
	// run is published before it.
	Events chan<- Event
	// Window is the initial visible capacity of the result window.
	Window int
}

type delivery struct {
	result Result
	exited bool
}

type run struct {
	id       string
	total    int
	slots    []*WorkerSlot
	inbox    chan delivery
	graceful bool
	reason   FinishReason
	done     chan struct{}

	// published is closed once the run's EventFinished has been taken;
	// after is the previous run's.
	published chan struct{}
	after     <-chan struct{}
}

// Controller runs batches of work items through a Cleaner. Results are
// funnelled through a single coordinating goroutine, which is the only
// writer of the stats aggregator and the result window.
type Controller struct {
	cleaner Cleaner
	logger  *slog.Logger
	events  chan<- Event

	dispatcher *Dispatcher
	stats      *StatsAggregator
	window     *ResultWindow

	mu        sync.Mutex
	state     State
	closed    bool
	run       *run
	published <-chan struct{}
}

func NewController(cleaner Cleaner, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	published := make(chan struct{})
	close(published)
	return &Controller{
		cleaner:    cleaner,
		logger:     logger.With(slog.String("component", "controller")),
		events:     opts.Events,
		dispatcher: NewDispatcher(),
		stats:      NewStatsAggregator(),
		window:     NewResultWindow(opts.Window),
		published:  published,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

func (c *Controller) Window() *ResultWindow {
	return c.window
}

func (c *Controller) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Start begins a run over items with up to concurrency lanes. Cancelling
// ctx has the same effect as Stop.
func (c *Controller) Start(ctx context.Context, items []WorkItem, concurrency int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return &StateError{Op: "start", State: c.state}
	}
	if err := c.dispatcher.Reset(items); err != nil {
		return err
	}
	c.window.Reset()
	c.stats.Reset()
	c.dispatcher.begin()

	lanes := clampConcurrency(concurrency, len(items))
	r := &run{
		id:        uuid.NewString(),
		total:     len(items),
		inbox:     make(chan delivery, lanes),
		done:      make(chan struct{}),
		published: make(chan struct{}),
		after:     c.published,
	}
	c.published = r.published
	logger := c.logger.With(slog.String("run", r.id))
	for i := 0; i < lanes; i++ {
		r.slots = append(r.slots, NewWorkerSlot(i, c.cleaner, logger))
	}

	c.run = r
	c.state = StateRunning
	logger.Info("run started", slog.Int("files", r.total), slog.Int("lanes", lanes))

	laneCtx := context.WithoutCancel(ctx)
	for _, slot := range r.slots {
		go func(slot *WorkerSlot) {
			slot.Run(laneCtx, c.dispatcher, func(res Result) {
				r.inbox <- delivery{result: res}
			})
			r.inbox <- delivery{exited: true}
		}(slot)
	}
	go c.coordinate(r, logger)
	go c.watch(ctx, r)
	return nil
}

// Stop hard-stops the active run: no more items are dispatched and every
// in-flight clean is abandoned. It returns once the stop is issued; use Wait
// to block until the controller is idle again.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return &StateError{Op: "stop", State: c.state}
	}
	c.haltLocked(FinishStopped, false)
	return nil
}

// Shutdown lets in-flight items finish, stops dispatching, waits for every
// lane to exit and refuses further runs. The wait is bounded only by ctx.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	r := c.run
	if c.state == StateRunning {
		c.haltLocked(FinishShutdown, true)
	}
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the current run, if any, has finished.
func (c *Controller) Wait(ctx context.Context) error {
	done := c.Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the current run finishes. With no run
// it is already closed. The run's EventFinished may still be pending when
// Done closes.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.run.done
}

// Settle waits until every clean abandoned by a hard stop of the current
// run has returned, so their staging files are gone.
func (c *Controller) Settle(ctx context.Context) error {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	for _, slot := range r.slots {
		if err := slot.Settle(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) haltLocked(reason FinishReason, graceful bool) {
	r := c.run
	c.state = StateStopping
	r.reason = reason
	r.graceful = graceful
	c.dispatcher.Halt()
	for _, slot := range r.slots {
		slot.Cancel(!graceful)
	}
	c.logger.Info("run stopping",
		slog.String("run", r.id),
		slog.String("reason", reason.String()),
		slog.Int("remaining", c.dispatcher.Remaining()),
	)
}

func (c *Controller) watch(ctx context.Context, r *run) {
	select {
	case <-r.done:
	case <-ctx.Done():
		c.mu.Lock()
		if c.run == r && c.state == StateRunning {
			c.haltLocked(FinishStopped, false)
		}
		c.mu.Unlock()
	}
}

func (c *Controller) coordinate(r *run, logger *slog.Logger) {
	active := len(r.slots)
	for active > 0 {
		d := <-r.inbox
		if d.exited {
			active--
			continue
		}
		c.deliver(r, d.result, logger)
	}
	c.finish(r, logger)
}

func (c *Controller) deliver(r *run, res Result, logger *slog.Logger) {
	c.mu.Lock()
	discard := c.state == StateStopping && !r.graceful
	c.mu.Unlock()

	if discard {
		logger.Debug("result after stop ignored", slog.String("input", res.InputPath))
		return
	}

	c.stats.Observe(res)
	changed := c.window.Append(res)
	c.publish(r, Event{
		Kind:          EventResult,
		RunID:         r.id,
		Result:        res,
		Stats:         c.stats.Snapshot(),
		Total:         r.total,
		WindowChanged: changed,
	})
}

func (c *Controller) finish(r *run, logger *slog.Logger) {
	c.mu.Lock()
	reason := r.reason
	if c.state == StateRunning {
		c.state = StateCompleting
		reason = FinishCompleted
	}
	c.stats.Freeze()
	snap := c.stats.Snapshot()
	c.dispatcher.end()
	c.state = StateIdle
	c.mu.Unlock()

	logger.Info("run finished",
		slog.String("reason", reason.String()),
		slog.Int("cleaned", snap.Cleaned),
		slog.Int("crashed", snap.Crashed),
		slog.Duration("elapsed", snap.Elapsed),
	)
	close(r.done)

	// The run is idle from here on; only the consumer's pace decides when
	// the finished event lands.
	if c.events != nil {
		<-r.after
		c.events <- Event{
			Kind:   EventFinished,
			RunID:  r.id,
			Stats:  snap,
			Total:  r.total,
			Reason: reason,
		}
	}
	close(r.published)
}

// publish offers a progress event without blocking.
func (c *Controller) publish(r *run, ev Event) {
	if c.events == nil {
		return
	}
	select {
	case <-r.after:
	default:
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("progress event dropped", slog.String("run", r.id), slog.Int("index", ev.Result.Index))
	}
}

func clampConcurrency(n, items int) int {
	if n < 1 {
		n = 1
	}
	if n > items {
		n = items
	}
	return n
}
