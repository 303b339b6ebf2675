package tui

import (
	"fmt"
	"math"
	"time"
)

// FormatSize renders a byte count with a binary unit.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit && n > -unit {
		return fmt.Sprintf("%d B", n)
	}
	value := float64(n)
	suffix := "KiB"
	for _, s := range []string{"KiB", "MiB", "GiB", "TiB"} {
		value /= unit
		suffix = s
		if math.Abs(value) < unit {
			break
		}
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}

// FormatPercent renders p with two decimals; NaN renders as "n/a".
func FormatPercent(p float64) string {
	if math.IsNaN(p) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", p)
}

// Reduction turns a size ratio into the share that was removed.
func Reduction(ratio float64) float64 {
	if math.IsNaN(ratio) {
		return ratio
	}
	return 100 - ratio
}

// FormatDuration renders d as hh:mm:ss.mmm.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}
