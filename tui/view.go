package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/moyu-x/file-transfer/internal"
)

func (m *model) View() string {
	var b strings.Builder

	if m.done {
		b.WriteString(successTitleStyle.Render("✅ 所有操作已结束") + "\n\n")
	} else {
		b.WriteString(titleStyle.Render(m.spinner.View()+" 正在传输文件...") + "\n\n")
	}

	for i, r := range m.rows {
		b.WriteString(m.renderRow(i, r))
		b.WriteString("\n")
	}

	b.WriteString(separatorStyle.Render(strings.Repeat("─", 60)) + "\n")
	if m.message != "" {
		b.WriteString(m.message + "\n")
	}
	b.WriteString(hintStyle.Render("↑/↓ 选择  p 暂停  r 恢复  c 取消  q 退出") + "\n")

	return lipgloss.NewStyle().
		Padding(1).
		Render(b.String())
}

func (m *model) renderRow(i int, r row) string {
	var b strings.Builder

	cursor := "  "
	header := fmt.Sprintf("%s %s [%s]", r.op.Type, shortID(r.op.ID), r.op.Priority)
	if i == m.selected {
		cursor = "> "
		header = selectedStyle.Render(header)
	}
	b.WriteString(cursor + header + "  " + renderStatus(r.op.Status) + "\n")

	percent := 0.0
	if r.prog != nil {
		percent = r.prog.ProgressPercent / 100
	}
	b.WriteString("  " + m.progressBar.ViewAs(percent) + "\n")

	if r.prog != nil {
		b.WriteString(fmt.Sprintf("  %s / %s  %s/s  剩余 %s  文件 %d/%d\n",
			formatBytes(r.prog.CopiedBytes), formatBytes(r.prog.TotalBytes),
			formatBytes(int64(r.prog.Speed)), formatETA(r.prog.ETA),
			r.prog.CompletedFiles, r.op.TotalFiles))
		if file := currentFile(r.prog); file != "" {
			b.WriteString("  " + filePathStyle.Render(file) + "\n")
		}
	}
	if r.op.ErrorSummary != "" {
		b.WriteString("  " + failedStyle.Render(r.op.ErrorSummary) + "\n")
	}

	return b.String()
}

func renderStatus(status internal.OperationStatus) string {
	switch status {
	case internal.StatusPaused:
		return pausedStyle.Render(string(status))
	case internal.StatusFailed, internal.StatusCancelled:
		return failedStyle.Render(string(status))
	case internal.StatusCompleted:
		return labelStyle.Render(string(status))
	}
	return string(status)
}

// currentFile 第一个已开始但未结束的文件
func currentFile(p *internal.OperationProgress) string {
	for _, path := range p.Order {
		f := p.Files[path]
		if f != nil && !f.Done && f.BytesCopied > 0 {
			return path
		}
	}
	return ""
}
