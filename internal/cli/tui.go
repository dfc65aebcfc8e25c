package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/domrand/pkg/observability"
)

// refreshInterval is how often the live view polls the counters.
const refreshInterval = 250 * time.Millisecond

var (
	listDimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	tableHeadStyle  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	tableValueStyle = lipgloss.NewStyle().Foreground(colorWhite)
	tableWarnStyle  = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// CollectModel - Live collection view
// =============================================================================

type tickMsg time.Time

// collectDoneMsg is sent by the collect command when Run returns.
type collectDoneMsg struct{ err error }

// CollectModel is the bubbletea model showing collection progress.
type CollectModel struct {
	counters *observability.Counters
	target   int
	runDir   string

	snap observability.Snapshot
	// Stopped is set when the user quit before collection finished.
	Stopped bool
	done    bool
	err     error
}

// NewCollectModel creates a live view over counters. target is the
// configured episode count, 0 for unbounded runs.
func NewCollectModel(counters *observability.Counters, target int, runDir string) CollectModel {
	return CollectModel{counters: counters, target: target, runDir: runDir}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m CollectModel) Init() tea.Cmd {
	return tick()
}

func (m CollectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Stopped = !m.done
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = m.counters.Snapshot()
		return m, tick()
	case collectDoneMsg:
		m.snap = m.counters.Snapshot()
		m.done, m.err = true, msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m CollectModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Collecting"))
	b.WriteString(" ")
	b.WriteString(listDimStyle.Render(m.runDir))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(m.progressLine()))
	b.WriteString("\n\n")

	s := m.snap
	rows := [][]string{
		{"episodes", fmt.Sprint(s.Episodes)},
		{"recorded", fmt.Sprint(s.Recorded)},
		{"positive", fmt.Sprintf("%d (%s)", s.Positive, percent(int(s.Positive), int(s.Recorded)))},
		{"skipped", fmt.Sprint(s.Skipped)},
		{"failed", fmt.Sprint(s.Failed)},
		{"index errors", fmt.Sprint(s.IndexErrors)},
		{"sim calls", fmt.Sprint(s.SimCalls)},
		{"avg call", avgCall(s).String()},
		{"written", formatBytes(s.Bytes)},
		{"last sample", orDash(s.LastID)},
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Metric", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return tableHeadStyle
			}
			if col == 1 && (rows[row][0] == "skipped" || rows[row][0] == "failed" || rows[row][0] == "index errors") && rows[row][1] != "0" {
				return tableWarnStyle
			}
			if col == 0 {
				return lipgloss.NewStyle().Foreground(colorGray)
			}
			return tableValueStyle
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	if s.LastError != "" {
		b.WriteString(StyleWarning.Render("last error: " + s.LastError))
		b.WriteString("\n")
	}
	b.WriteString(listDimStyle.Render("q stop"))
	b.WriteString("\n")
	return b.String()
}

func (m CollectModel) progressLine() string {
	up := m.snap.Uptime.Round(time.Second)
	if m.target == 0 {
		return fmt.Sprintf("%d episodes, %s", m.snap.Episodes, up)
	}
	return fmt.Sprintf("%d/%d episodes, %s", m.snap.Episodes, m.target, up)
}

// =============================================================================
// Helpers
// =============================================================================

func avgCall(s observability.Snapshot) time.Duration {
	if s.SimCalls == 0 {
		return 0
	}
	return (s.SimTime / time.Duration(s.SimCalls)).Round(time.Microsecond)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
