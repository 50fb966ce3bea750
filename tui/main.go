// Package tui renders running operations as progress bars and forwards
// pause, resume and cancel keys to the operations manager.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

// Engine 界面需要的管理器方法
type Engine interface {
	GetOperation(id string) (*internal.FileOperation, bool)
	GetProgress(id string) (*internal.OperationProgress, bool)
	GetAllOperations() []*internal.FileOperation
	PauseOperation(id string) bool
	ResumeOperation(id string) bool
	CancelOperation(id string) bool
}

// Run 跟踪给定的操作直到全部结束或用户退出；ids 为空时显示管理器中的所有操作，直到用户退出
func Run(engine Engine, ids []string) error {
	logger.Get().Info().Msg("启动 TUI 界面")

	m := newModel(engine, ids)
	p := tea.NewProgram(m)

	_, err := p.Run()
	if err != nil {
		logger.Get().Error().Err(err).Msg("TUI 运行错误")
	} else {
		logger.Get().Info().Msg("TUI 正常退出")
	}

	return err
}
