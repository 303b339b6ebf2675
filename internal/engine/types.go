package engine

import (
	"context"
	"time"
)

// WorkItem is one (input, output) pair. Index is its position in the
// list the run was started with.
type WorkItem struct {
	Index  int
	Input  string
	Output string
}

// Outcome is what a Cleaner reports for a file it processed successfully.
type Outcome struct {
	SizeBefore int64
	SizeAfter  int64
	Elapsed    time.Duration
	Leaks      int
}

// Cleaner is the external transformation applied to every work item.
type Cleaner interface {
	Clean(ctx context.Context, input, output string) (Outcome, error)
}

type CleanerFunc func(ctx context.Context, input, output string) (Outcome, error)

func (f CleanerFunc) Clean(ctx context.Context, input, output string) (Outcome, error) {
	return f(ctx, input, output)
}

type Result struct {
	Index         int
	InputPath     string
	OutputPath    string
	SizeBefore    int64
	SizeAfter     int64
	CompressRatio float64
	Elapsed       time.Duration
	Leaks         int
	Crashed       bool
	Err           error
}

// NewResult builds the Result for an item that was cleaned successfully.
func NewResult(item WorkItem, out Outcome) Result {
	return Result{
		Index:         item.Index,
		InputPath:     item.Input,
		OutputPath:    item.Output,
		SizeBefore:    nonNegative(out.SizeBefore),
		SizeAfter:     nonNegative(out.SizeAfter),
		CompressRatio: CompressRatio(out.SizeBefore, out.SizeAfter),
		Elapsed:       out.Elapsed,
		Leaks:         out.Leaks,
	}
}

// CrashedResult builds the Result for an item whose clean failed.
func CrashedResult(item WorkItem, elapsed time.Duration, err error) Result {
	return Result{
		Index:      item.Index,
		InputPath:  item.Input,
		OutputPath: item.Output,
		Elapsed:    elapsed,
		Crashed:    true,
		Err:        err,
	}
}

// CompressRatio returns after/before as a percentage clamped into [0,100].
// An empty input or a file that grew reports 100.
func CompressRatio(before, after int64) float64 {
	if before <= 0 {
		return 100
	}
	ratio := float64(after) / float64(before) * 100
	if ratio < 0 {
		return 0
	}
	if ratio > 100 {
		return 100
	}
	return ratio
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
