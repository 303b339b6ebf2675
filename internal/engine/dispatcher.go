package engine

import "sync"

// Dispatcher hands out pending work items one at a time to whichever lane
// asks first. All methods are safe for concurrent use.
type Dispatcher struct {
	mu     sync.Mutex
	items  []WorkItem
	cursor int
	active bool
	halted bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Reset replaces the pending list and rewinds the cursor. Items are
// re-indexed by position.
func (d *Dispatcher) Reset(items []WorkItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return &StateError{Op: "dispatcher reset", State: StateRunning}
	}

	d.items = make([]WorkItem, len(items))
	for i, item := range items {
		item.Index = i
		d.items[i] = item
	}
	d.cursor = 0
	d.halted = false
	return nil
}

// Next returns the item at the cursor and advances it. ok is false once the
// list is exhausted or the dispatcher was halted.
func (d *Dispatcher) Next() (item WorkItem, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.halted || d.cursor >= len(d.items) {
		return WorkItem{}, false
	}
	item = d.items[d.cursor]
	d.cursor++
	return item, true
}

// Remaining is the number of items not yet handed out.
func (d *Dispatcher) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items) - d.cursor
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Halt freezes the cursor; every later Next reports exhaustion.
func (d *Dispatcher) Halt() {
	d.mu.Lock()
	d.halted = true
	d.mu.Unlock()
}

func (d *Dispatcher) begin() {
	d.mu.Lock()
	d.active = true
	d.mu.Unlock()
}

func (d *Dispatcher) end() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
}
