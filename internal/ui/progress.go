package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"strand/internal/workload"
)

// maxDetails bounds the per-run lines under the grid.
const maxDetails = 8

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusCells = map[workload.Status]string{
		workload.StatusQueued:  "·",
		workload.StatusWorking: "◐",
		workload.StatusDone:    "●",
		workload.StatusError:   "✗",
	}
	statusStyles = map[workload.Status]lipgloss.Style{
		workload.StatusQueued:  dimStyle,
		workload.StatusWorking: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		workload.StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		workload.StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// sweepModel shows one grid cell per run, in run order, and lists the runs
// that are in flight or failed below it.
type sweepModel struct {
	title   string
	events  <-chan workload.Event
	spinner spinner.Model
	bar     progress.Model
	runs    []runState
	failed  int
	settled int
	width   int
	closed  bool
}

type runState struct {
	seed   uint64
	status workload.Status
	err    string
}

type eventMsg workload.Event
type closedMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders a sweep over seeds
// from the events of workload.Sweep. The program quits once events is closed
// or on ctrl+c.
func NewProgressModel(title string, seeds []uint64, events <-chan workload.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = statusStyles[workload.StatusWorking]

	runs := make([]runState, len(seeds))
	for i, seed := range seeds {
		runs[i] = runState{seed: seed, status: workload.StatusQueued}
	}
	return &sweepModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		runs:    runs,
		width:   80,
	}
}

func (m *sweepModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *sweepModel) next() tea.Cmd {
	return func() tea.Msg {
		if ev, ok := <-m.events; ok {
			return eventMsg(ev)
		}
		return closedMsg{}
	}
}

func (m *sweepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(workload.Event(msg)), m.next())
	case closedMsg:
		m.closed = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = max(msg.Width-4, 10)
		}
	case spinner.TickMsg:
		if !m.closed {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// apply records ev and returns the progress bar animation. Events for unknown
// runs are ignored.
func (m *sweepModel) apply(ev workload.Event) tea.Cmd {
	if ev.Run < 0 || ev.Run >= len(m.runs) {
		return nil
	}
	run := &m.runs[ev.Run]
	wasSettled := run.status == workload.StatusDone || run.status == workload.StatusError
	run.status = ev.Status
	if ev.Status == workload.StatusError {
		m.failed++
		if ev.Err != nil {
			msg := ev.Err.Error()
			if i := strings.IndexByte(msg, '\n'); i >= 0 {
				msg = msg[:i]
			}
			run.err = msg
		}
	}
	if !wasSettled && (ev.Status == workload.StatusDone || ev.Status == workload.StatusError) {
		m.settled++
	}
	return m.bar.SetPercent(float64(m.settled) / float64(len(m.runs)))
}

func (m *sweepModel) View() string {
	if len(m.runs) == 0 {
		return ""
	}
	var b strings.Builder

	lead := m.spinner.View()
	if m.closed {
		lead = "done:"
	}
	header := fmt.Sprintf("%s %s %d/%d", lead, m.title, m.settled, len(m.runs))
	if m.failed > 0 {
		header += fmt.Sprintf(", %d failed", m.failed)
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	b.WriteString(m.grid())
	b.WriteString("\n")

	detailWidth := max(m.width-12, 20)
	for _, i := range detailRows(m.runs, maxDetails) {
		run := m.runs[i]
		line := fmt.Sprintf("seed %d", run.seed)
		if run.err != "" {
			line += ": " + run.err
		}
		fmt.Fprintf(&b, "  %s %s\n", statusStyles[run.status].Render(fmt.Sprintf("%-8s", run.status)), fit(line, detailWidth))
	}

	b.WriteString("\n")
	if m.closed {
		b.WriteString(m.bar.ViewAs(1))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteString("\n")
	return b.String()
}

// grid renders one cell per run, wrapped to the terminal width.
func (m *sweepModel) grid() string {
	perLine := max((m.width-2)/2, 8)
	var b strings.Builder
	for i, run := range m.runs {
		if i%perLine == 0 {
			b.WriteString("  ")
		}
		b.WriteString(statusStyles[run.status].Render(statusCells[run.status]))
		if i%perLine == perLine-1 || i == len(m.runs)-1 {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// detailRows returns the indexes of failed runs, then of running ones, up to
// limit.
func detailRows(runs []runState, limit int) []int {
	rows := make([]int, 0, limit)
	for _, want := range []workload.Status{workload.StatusError, workload.StatusWorking} {
		for i, run := range runs {
			if len(rows) == limit {
				return rows
			}
			if run.status == want {
				rows = append(rows, i)
			}
		}
	}
	return rows
}

// fit shortens s to width display cells.
func fit(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
