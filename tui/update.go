package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/moyu-x/file-transfer/pkg/logger"
)

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.progressBar.Width = msg.Width - 30
		if m.progressBar.Width < 10 {
			m.progressBar.Width = 10
		}
		return m, nil

	case tickMsg:
		return m, m.poll()

	case snapshotMsg:
		m.rows = msg.rows
		if m.selected >= len(m.rows) {
			m.selected = len(m.rows) - 1
		}
		if m.allTerminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
		}
		return m, nil
	}

	id, ok := m.selectedID()
	if !ok {
		return m, nil
	}

	var action string
	var applied bool
	switch msg.String() {
	case "p":
		action, applied = "暂停", m.engine.PauseOperation(id)
	case "r":
		action, applied = "恢复", m.engine.ResumeOperation(id)
	case "c":
		action, applied = "取消", m.engine.CancelOperation(id)
	default:
		return m, nil
	}

	if applied {
		m.message = fmt.Sprintf("已%s操作 %s", action, shortID(id))
		logger.Get().Info().Msgf("TUI %s操作: %s", action, id)
	} else {
		m.message = fmt.Sprintf("无法%s操作 %s", action, shortID(id))
	}
	return m, m.poll()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatETA 未知时显示 --
func formatETA(eta time.Duration) string {
	if eta < 0 {
		return "--"
	}
	return eta.Round(time.Second).String()
}
