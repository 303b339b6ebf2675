package tui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scour/internal/engine"
)

// headerLines is the number of rows View draws above the result list,
// footerLines the number below it.
const (
	headerLines = 7
	footerLines = 2
)

// Run is the part of the controller the model drives.
type Run interface {
	Window() *engine.ResultWindow
	Stop() error
}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding
	Stop     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k")),
	Down:     key.NewBinding(key.WithKeys("down", "j")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "b")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", "f", " ")),
	Home:     key.NewBinding(key.WithKeys("home", "g")),
	End:      key.NewBinding(key.WithKeys("end", "G")),
	Stop:     key.NewBinding(key.WithKeys("s")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc")),
}

type Model struct {
	events  <-chan engine.Event
	run     Run
	spinner spinner.Model
	started time.Time

	width    int
	height   int
	total    int
	stats    engine.StatsSnapshot
	visible  []engine.Result
	stopping bool
	finished bool
	reason   engine.FinishReason
	quitting bool
}

type doneMsg struct{}

type eventMsg engine.Event

func NewModel(events <-chan engine.Event, run Run, total int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = titleStyle
	return Model{
		events:  events,
		run:     run,
		spinner: sp,
		started: time.Now(),
		total:   total,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(listenForEvents(m.events), m.spinner.Tick)
}

// Finished reports whether the run ended and why.
func (m Model) Finished() (engine.FinishReason, bool) {
	return m.reason, m.finished
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.stats = msg.Stats
		if msg.Total > 0 {
			m.total = msg.Total
		}
		// progress events may have been dropped, so read the window itself
		m.visible = m.run.Window().VisibleSlice()
		if msg.Kind == engine.EventFinished {
			m.finished = true
			m.reason = msg.Reason
			m.quitting = true
			return m, tea.Quit
		}
		return m, listenForEvents(m.events)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.run.Window().Resize(m.listCapacity())
		m.visible = m.run.Window().VisibleSlice()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	w := m.run.Window()
	page := max(1, w.Capacity())

	switch {
	case key.Matches(msg, keys.Quit):
		if m.finished {
			m.quitting = true
			return m, tea.Quit
		}
		m.quitting = true
		return m.stop()
	case key.Matches(msg, keys.Stop):
		return m.stop()
	case key.Matches(msg, keys.Up):
		w.ScrollBy(-1)
	case key.Matches(msg, keys.Down):
		w.ScrollBy(1)
	case key.Matches(msg, keys.PageUp):
		w.ScrollBy(-page)
	case key.Matches(msg, keys.PageDown):
		w.ScrollBy(page)
	case key.Matches(msg, keys.Home):
		w.ScrollTo(0)
	case key.Matches(msg, keys.End):
		w.ScrollTo(w.MaxOffset())
	default:
		return m, nil
	}
	m.visible = w.VisibleSlice()
	return m, nil
}

// stop issues a hard stop; the finished event arrives on the event channel.
func (m Model) stop() (tea.Model, tea.Cmd) {
	if m.stopping || m.finished {
		return m, nil
	}
	if err := m.run.Stop(); err != nil {
		return m, nil
	}
	m.stopping = true
	return m, nil
}

func (m Model) listCapacity() int {
	return max(1, m.height-headerLines-footerLines)
}

func (m Model) View() string {
	if m.quitting && m.finished {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = max(20, min(60, m.width-10))
	}
	ratio := 0.0
	if m.total > 0 {
		ratio = math.Min(1, float64(m.stats.Observed())/float64(m.total))
	}

	status := m.spinner.View() + " "
	switch {
	case m.finished:
		status = okStyle.Render(m.reason.String()) + " "
	case m.stopping:
		status = warnStyle.Render("stopping") + " "
	}

	lines := []string{
		status + titleStyle.Render("scour"),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.stats.Observed(), m.total)) +
			dimStyle.Render(fmt.Sprintf("  cleaned:%d crashed:%d", m.stats.Cleaned, m.stats.Crashed)),
		labelStyle.Render(fmt.Sprintf("Size: %s -> %s", FormatSize(m.stats.TotalInputBytes), FormatSize(m.stats.TotalOutputBytes))) +
			dimStyle.Render(fmt.Sprintf("  saved %s", FormatSize(m.stats.BytesSaved()))),
		labelStyle.Render(fmt.Sprintf("Reduction: avg %s  max %s  min %s",
			FormatPercent(Reduction(m.stats.AverageCompress())),
			FormatPercent(Reduction(m.stats.CompressMin)),
			FormatPercent(Reduction(m.stats.CompressMax)),
		)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s  per file: %s", FormatDuration(m.stats.Elapsed), FormatDuration(m.stats.AverageTime()))),
		barStyle.Render(renderBar(barWidth, ratio)),
		"",
	}

	for _, r := range m.visible {
		lines = append(lines, RenderResult(r, m.width))
	}

	w := m.run.Window()
	footer := dimStyle.Render("↑/↓ scroll  s stop  q quit")
	if n := w.Len(); n > 0 && len(m.visible) > 0 {
		off := w.Offset()
		footer = dimStyle.Render(fmt.Sprintf("%d-%d of %d  ", off+1, off+len(m.visible), n)) + footer
	}
	lines = append(lines, "", footer)

	return strings.Join(lines, "\n")
}

// RenderResult draws one result as a single line no wider than width
// (unbounded when width is 0).
func RenderResult(r engine.Result, width int) string {
	name := filepath.Base(r.InputPath)
	var line string
	if r.Crashed {
		msg := "crashed"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		line = crashedStyle.Render("✗ "+name) + dimStyle.Render("  "+msg)
	} else {
		line = okStyle.Render("✓ "+name) + labelStyle.Render(fmt.Sprintf("  %s -> %s  -%s",
			FormatSize(r.SizeBefore),
			FormatSize(r.SizeAfter),
			FormatPercent(Reduction(r.CompressRatio)),
		)) + dimStyle.Render("  "+r.Elapsed.Round(time.Millisecond).String())
	}
	if width > 0 {
		return lipgloss.NewStyle().MaxWidth(width).Render(line)
	}
	return line
}

func listenForEvents(events <-chan engine.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	filled = max(0, min(width, filled))
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}
