package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"scour/internal/engine"
)

type SummaryRow struct {
	Label string
	Value string
}

// SummaryRows lays out the final statistics of a run. Max and min
// compression are swapped on purpose: the smallest size ratio is the
// largest reduction.
func SummaryRows(snap engine.StatsSnapshot, total int) []SummaryRow {
	rows := []SummaryRow{
		{Label: "Files", Value: fmt.Sprintf("%d/%d", snap.Observed(), total)},
		{Label: "Cleaned", Value: fmt.Sprintf("%d", snap.Cleaned)},
		{Label: "Crashed", Value: fmt.Sprintf("%d", snap.Crashed)},
		{Label: "Size before", Value: FormatSize(snap.TotalInputBytes)},
		{Label: "Size after", Value: FormatSize(snap.TotalOutputBytes)},
		{Label: "Space saved", Value: FormatSize(snap.BytesSaved())},
		{Label: "Average reduction", Value: FormatPercent(Reduction(snap.AverageCompress()))},
		{Label: "Max reduction", Value: FormatPercent(Reduction(snap.CompressMin))},
		{Label: "Min reduction", Value: FormatPercent(Reduction(snap.CompressMax))},
		{Label: "Total time", Value: FormatDuration(snap.Elapsed)},
		{Label: "Average time", Value: FormatDuration(snap.AverageTime())},
		{Label: "Max time", Value: FormatDuration(snap.TimeMax)},
		{Label: "Min time", Value: FormatDuration(snap.TimeMin)},
	}
	if snap.Leaks > 0 {
		rows = append(rows, SummaryRow{Label: "Privacy leaks plugged", Value: fmt.Sprintf("%d", snap.Leaks)})
	}
	return rows
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(row.Label))
		valueWidth = max(valueWidth, lipgloss.Width(row.Value))
	}

	hline := dimStyle.Render(strings.Repeat("-", labelWidth+valueWidth+3))
	lines := []string{hline}
	for _, row := range rows {
		label := labelStyle.Width(labelWidth).Render(row.Label)
		value := valueStyle.Width(valueWidth).Render(row.Value)
		lines = append(lines, label+dimStyle.Render(" | ")+value)
	}
	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

var valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
