// Package app wires configuration, history storage and the operations
// manager together for the command line entry points.
package app

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/config"
	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/database"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/operations"
	"github.com/moyu-x/file-transfer/pkg/verifier"
)

// Engine 已启动的管理器及其历史记录存储
type Engine struct {
	*operations.Manager
	Fs       afero.Fs
	Verifier *verifier.Verifier
	history  database.Store
}

// NewEngine 按配置创建并启动管理器，decider 为 nil 时 Ask 冲突按跳过处理
func NewEngine(cfg *config.Config, decider internal.ConflictDecider) (*Engine, error) {
	fs := afero.NewOsFs()
	v := verifier.New(fs, cfg.VerifierOptions()...)

	deps := []operations.Dependency{
		operations.WithFs(fs),
		operations.WithVerifier(v),
		operations.WithDecider(decider),
	}

	var history database.Store
	if cfg.History.Enabled {
		var err error
		history, err = database.Open(cfg.History.Backend, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("打开历史记录失败: %w", err)
		}
		deps = append(deps, operations.WithHistory(history))
		logger.Get().Debug().Msgf("历史记录: %s (%s)", cfg.History.Path, cfg.History.Backend)
	}

	m, err := operations.NewManager(cfg.EngineOptions(), deps...)
	if err != nil {
		if history != nil {
			history.Close()
		}
		return nil, err
	}
	if err := m.Start(); err != nil {
		m.Stop()
		if history != nil {
			history.Close()
		}
		return nil, err
	}

	return &Engine{Manager: m, Fs: fs, Verifier: v, history: history}, nil
}

// Close 停止管理器并关闭历史记录
func (e *Engine) Close() error {
	e.Manager.Stop()
	if e.history != nil {
		return e.history.Close()
	}
	return nil
}

// OpenHistory 只读取历史记录，不启动管理器
func OpenHistory(cfg *config.Config) (database.Store, error) {
	return database.Open(cfg.History.Backend, cfg.History.Path)
}
