package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/moyu-x/file-transfer/internal"
)

const pollInterval = 200 * time.Millisecond

type model struct {
	engine      Engine
	ids         []string
	rows        []row
	selected    int
	progressBar progress.Model
	spinner     spinner.Model
	done        bool
	message     string
}

func newModel(engine Engine, ids []string) *model {
	progressBar := progress.New(progress.WithDefaultGradient())
	progressBar.PercentageStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Width(4)

	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		FPS:    time.Second / 10,
	}
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &model{
		engine:      engine,
		ids:         ids,
		progressBar: progressBar,
		spinner:     s,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.spinner.Tick)
}

// poll 读取所有被跟踪操作的快照
func (m *model) poll() tea.Cmd {
	engine, ids := m.engine, m.ids
	return func() tea.Msg {
		var ops []*internal.FileOperation
		if len(ids) == 0 {
			ops = engine.GetAllOperations()
		} else {
			for _, id := range ids {
				if op, ok := engine.GetOperation(id); ok {
					ops = append(ops, op)
				}
			}
		}

		rows := make([]row, 0, len(ops))
		for _, op := range ops {
			prog, _ := engine.GetProgress(op.ID)
			rows = append(rows, row{op: op, prog: prog})
		}
		return snapshotMsg{rows: rows}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// allTerminal 不指定 ids 时一直运行
func (m *model) allTerminal() bool {
	if len(m.ids) == 0 {
		return false
	}
	if len(m.rows) == 0 {
		return true
	}
	for _, r := range m.rows {
		if !r.op.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (m *model) selectedID() (string, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return "", false
	}
	return m.rows[m.selected].op.ID, true
}
