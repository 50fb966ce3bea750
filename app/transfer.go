package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/config"
	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/operations"
	"github.com/moyu-x/file-transfer/pkg/scanner"
	"github.com/moyu-x/file-transfer/tui"
)

type TransferOptions struct {
	Type        internal.OperationType
	Sources     []string
	Destination string
	Priority    internal.Priority
	Options     internal.OperationOptions
	UseTUI      bool
	// Decider Ask 冲突时调用，TUI 模式下忽略
	Decider internal.ConflictDecider
}

// ResolveDestinations 目标是已存在的目录或有多个源时，每个源放到目标目录下
func ResolveDestinations(fs afero.Fs, sources []string, dest string) ([]string, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no source paths", internal.ErrInvalidInput)
	}

	info, err := fs.Stat(dest)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("检查目标路径失败: %w", err)
	}
	isDir := err == nil && info.IsDir()
	if len(sources) > 1 && !isDir {
		if err == nil {
			return nil, fmt.Errorf("%w: destination %s is not a directory", internal.ErrInvalidInput, dest)
		}
		isDir = true
	}

	dests := make([]string, len(sources))
	for i, src := range sources {
		if isDir {
			dests[i] = filepath.Join(dest, filepath.Base(filepath.Clean(src)))
		} else {
			dests[i] = dest
		}
	}
	return dests, nil
}

// RunTransfer 入队一个复制/移动/校验操作并等待其结束
func RunTransfer(ctx context.Context, cfg *config.Config, opts *TransferOptions) (*internal.FileOperation, error) {
	decider := opts.Decider
	if opts.UseTUI {
		decider = nil
	}

	engine, err := NewEngine(cfg, decider)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	dests, err := ResolveDestinations(engine.Fs, opts.Sources, opts.Destination)
	if err != nil {
		return nil, err
	}

	logger.Get().Info().Msgf("源路径数: %d", len(opts.Sources))
	for i, src := range opts.Sources {
		logger.Get().Info().Msgf("  [%d] %s -> %s", i+1, src, dests[i])
	}
	if _, err := scanner.NewFileWalker(engine.Fs).CountFiles(opts.Sources); err != nil {
		return nil, err
	}

	var id string
	switch opts.Type {
	case internal.OpCopy:
		id, err = engine.QueueCopy(opts.Sources, dests, opts.Priority, opts.Options)
	case internal.OpMove:
		id, err = engine.QueueMove(opts.Sources, dests, opts.Priority, opts.Options)
	case internal.OpVerify:
		id, err = engine.QueueVerify(opts.Sources, dests, opts.Priority, opts.Options)
	default:
		err = fmt.Errorf("%w: operation type %q", internal.ErrInvalidInput, opts.Type)
	}
	if err != nil {
		return nil, err
	}

	if opts.UseTUI {
		if err := tui.Run(engine, []string{id}); err != nil {
			return nil, err
		}
		// 用户提前退出界面时取消操作
		engine.CancelOperation(id)
	} else {
		stop := logProgress(engine.Manager, id)
		defer stop()
	}

	op, err := engine.Wait(ctx, id)
	if err != nil {
		engine.CancelOperation(id)
		return nil, err
	}
	return op, nil
}

// logProgress 非 TUI 模式下按事件输出进度日志
func logProgress(m *operations.Manager, id string) func() {
	events, unsubscribe := m.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		lastPercent := -10.0
		for ev := range events {
			if ev.OperationID != id {
				continue
			}
			switch ev.Type {
			case operations.EventProgress:
				prog, ok := m.GetProgress(id)
				if !ok || prog.ProgressPercent-lastPercent < 10 {
					continue
				}
				lastPercent = prog.ProgressPercent
				logger.Get().Info().Msgf("传输进度: %.1f%% (%d/%d 个文件)", prog.ProgressPercent, prog.CompletedFiles, len(prog.Order))
			case operations.EventPaused, operations.EventResumed, operations.EventStarted:
				logger.Get().Info().Msgf("操作状态: %s", ev.Type)
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}
