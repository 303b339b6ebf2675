package engine

import "sync"

// ResultWindow owns the full result history and a bounded view into it.
//
// While the view shows the tail of the history it follows new results;
// once the consumer scrolls back it stays put until they return to the tail.
type ResultWindow struct {
	mu       sync.RWMutex
	history  []Result
	offset   int
	capacity int
}

func NewResultWindow(capacity int) *ResultWindow {
	if capacity < 0 {
		capacity = 0
	}
	return &ResultWindow{capacity: capacity}
}

// Reset drops the history but keeps the capacity.
func (w *ResultWindow) Reset() {
	w.mu.Lock()
	w.history = nil
	w.offset = 0
	w.mu.Unlock()
}

// Append adds r to the history and reports whether the visible slice changed.
func (w *ResultWindow) Append(r Result) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	following := w.offset == w.maxOffset()
	w.history = append(w.history, r)
	if following {
		w.offset = w.maxOffset()
	}

	idx := len(w.history) - 1
	return idx >= w.offset && idx < w.offset+w.capacity
}

// Resize sets the capacity. A view at the tail stays at the tail; a view
// the consumer scrolled back keeps its offset, clamped to the new range.
func (w *ResultWindow) Resize(capacity int) bool {
	if capacity < 0 {
		capacity = 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	prevOffset, prevCapacity := w.offset, w.capacity
	following := w.offset == w.maxOffset()
	w.capacity = capacity
	if following {
		w.offset = w.maxOffset()
	} else {
		w.offset = min(w.offset, w.maxOffset())
	}
	return w.offset != prevOffset || w.capacity != prevCapacity
}

// ScrollTo moves the view, clamping offset into [0, len-capacity].
func (w *ResultWindow) ScrollTo(offset int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scrollTo(offset)
}

// ScrollBy moves the view by delta rows.
func (w *ResultWindow) ScrollBy(delta int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scrollTo(w.offset + delta)
}

func (w *ResultWindow) scrollTo(offset int) bool {
	offset = max(0, min(offset, w.maxOffset()))
	if offset == w.offset {
		return false
	}
	w.offset = offset
	return true
}

// VisibleSlice returns a copy of the results currently in view.
func (w *ResultWindow) VisibleSlice() []Result {
	w.mu.RLock()
	defer w.mu.RUnlock()

	end := min(w.offset+w.capacity, len(w.history))
	if w.offset >= end {
		return nil
	}
	out := make([]Result, end-w.offset)
	copy(out, w.history[w.offset:end])
	return out
}

// History returns a copy of every result appended since the last Reset.
func (w *ResultWindow) History() []Result {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Result, len(w.history))
	copy(out, w.history)
	return out
}

func (w *ResultWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.history)
}

func (w *ResultWindow) Offset() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.offset
}

func (w *ResultWindow) Capacity() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.capacity
}

func (w *ResultWindow) MaxOffset() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.maxOffset()
}

func (w *ResultWindow) maxOffset() int {
	return max(0, len(w.history)-w.capacity)
}
