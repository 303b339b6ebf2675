package engine

import (
	"math"
	"sync"
	"time"
)

// StatsSnapshot is an immutable copy of the aggregator's counters.
type StatsSnapshot struct {
	Cleaned          int
	Crashed          int
	TotalInputBytes  int64
	TotalOutputBytes int64
	CompressSum      float64
	// CompressMax and CompressMin are NaN until a qualifying ratio was seen.
	CompressMax float64
	CompressMin float64
	TimeMax     time.Duration
	TimeMin     time.Duration
	TimeSum     time.Duration
	Leaks       int
	Elapsed     time.Duration
}

func (s StatsSnapshot) Observed() int {
	return s.Cleaned + s.Crashed
}

// AverageCompress is CompressSum / Cleaned, or NaN when nothing was cleaned.
func (s StatsSnapshot) AverageCompress() float64 {
	if s.Cleaned == 0 {
		return math.NaN()
	}
	return s.CompressSum / float64(s.Cleaned)
}

// AverageTime is the mean per-file processing time over every observed result.
func (s StatsSnapshot) AverageTime() time.Duration {
	n := s.Observed()
	if n == 0 {
		return 0
	}
	return s.TimeSum / time.Duration(n)
}

func (s StatsSnapshot) BytesSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}

// StatsAggregator keeps running totals over observed results. Observe is
// expected to be called from a single writer; Snapshot may be called from
// anywhere.
type StatsAggregator struct {
	mu      sync.RWMutex
	now     func() time.Time
	started time.Time
	ended   time.Time

	cleaned     int
	crashed     int
	inBytes     int64
	outBytes    int64
	compressSum float64
	compressMax float64
	compressMin float64
	hasMax      bool
	hasMin      bool
	timeMax     time.Duration
	timeMin     time.Duration
	timeSum     time.Duration
	hasTime     bool
	leaks       int
}

func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{now: time.Now}
}

// Reset zeroes every counter and starts the wall clock.
func (a *StatsAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.started = a.now()
	a.ended = time.Time{}
	a.cleaned, a.crashed, a.leaks = 0, 0, 0
	a.inBytes, a.outBytes = 0, 0
	a.compressSum, a.compressMax, a.compressMin = 0, 0, 0
	a.hasMax, a.hasMin, a.hasTime = false, false, false
	a.timeMax, a.timeMin, a.timeSum = 0, 0, 0
}

// Freeze stops the wall clock so Elapsed stays fixed after a run ends.
func (a *StatsAggregator) Freeze() {
	a.mu.Lock()
	a.ended = a.now()
	a.mu.Unlock()
}

func (a *StatsAggregator) Observe(r Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasTime || r.Elapsed > a.timeMax {
		a.timeMax = r.Elapsed
	}
	if !a.hasTime || r.Elapsed < a.timeMin {
		a.timeMin = r.Elapsed
	}
	a.hasTime = true
	a.timeSum += r.Elapsed

	if r.Crashed {
		a.crashed++
		return
	}

	a.cleaned++
	a.inBytes += r.SizeBefore
	a.outBytes += r.SizeAfter
	a.compressSum += r.CompressRatio
	a.leaks += r.Leaks

	// 100 means nothing was removed and 0 means an empty output; neither
	// counts as an extreme.
	if r.CompressRatio < 100 && (!a.hasMax || r.CompressRatio > a.compressMax) {
		a.compressMax = r.CompressRatio
		a.hasMax = true
	}
	if r.CompressRatio > 0 && (!a.hasMin || r.CompressRatio < a.compressMin) {
		a.compressMin = r.CompressRatio
		a.hasMin = true
	}
}

func (a *StatsAggregator) Snapshot() StatsSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := StatsSnapshot{
		Cleaned:          a.cleaned,
		Crashed:          a.crashed,
		TotalInputBytes:  a.inBytes,
		TotalOutputBytes: a.outBytes,
		CompressSum:      a.compressSum,
		CompressMax:      math.NaN(),
		CompressMin:      math.NaN(),
		TimeMax:          a.timeMax,
		TimeMin:          a.timeMin,
		TimeSum:          a.timeSum,
		Leaks:            a.leaks,
	}
	if a.hasMax {
		snap.CompressMax = a.compressMax
	}
	if a.hasMin {
		snap.CompressMin = a.compressMin
	}
	if !a.started.IsZero() {
		end := a.ended
		if end.IsZero() {
			end = a.now()
		}
		snap.Elapsed = end.Sub(a.started)
	}
	return snap
}
