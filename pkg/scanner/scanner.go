package scanner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

type FileWalker struct {
	Fs afero.Fs
}

func NewFileWalker(fs afero.Fs) *FileWalker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileWalker{Fs: fs}
}

// Walk 只回调文件，按字典序遍历
func (w *FileWalker) Walk(root string, callback func(path string, info os.FileInfo) error) error {
	return afero.Walk(w.Fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return callback(path, info)
	})
}

// WalkDirs 只回调目录，父目录先于子目录
func (w *FileWalker) WalkDirs(root string, callback func(path string, info os.FileInfo) error) error {
	return afero.Walk(w.Fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		return callback(path, info)
	})
}

func (w *FileWalker) CountFiles(dirs []string) (int, error) {
	logger.Get().Info().Msgf("开始统计文件数量，共 %d 个目录", len(dirs))

	count := 0
	for _, dir := range dirs {
		logger.Get().Debug().Msgf("扫描目录: %s", dir)
		err := w.Walk(dir, func(path string, info os.FileInfo) error {
			count++
			return nil
		})
		if err != nil {
			logger.Get().Error().Err(err).Msgf("扫描目录失败: %s", dir)
			return 0, err
		}
	}

	logger.Get().Info().Msgf("文件统计完成，共找到 %d 个文件", count)
	return count, nil
}

// Plan 目录展开后的执行计划
type Plan struct {
	// Pairs 逐文件的源/目标，顺序与提交顺序一致
	Pairs []internal.PathPair
	Sizes []int64
	// Dirs 需要在目标侧镜像的目录，父目录在前
	Dirs []internal.PathPair
}

// TotalBytes 计划中所有文件的字节数
func (p *Plan) TotalBytes() int64 {
	var total int64
	for _, s := range p.Sizes {
		total += s
	}
	return total
}

// Expand 把目录对展开为逐文件的路径对，文件对原样保留
func (w *FileWalker) Expand(pairs []internal.PathPair) (*Plan, error) {
	plan := &Plan{}
	for _, pair := range pairs {
		info, err := w.Fs.Stat(pair.Source)
		if err != nil {
			return nil, internal.NewError("scan", pair.Source, err)
		}

		if !info.IsDir() {
			plan.Pairs = append(plan.Pairs, pair)
			plan.Sizes = append(plan.Sizes, info.Size())
			continue
		}

		err = afero.Walk(w.Fs, pair.Source, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(pair.Source, path)
			if err != nil {
				return fmt.Errorf("计算相对路径失败: %w", err)
			}
			mapped := internal.PathPair{Source: path, Destination: filepath.Join(pair.Destination, rel)}
			if fi.IsDir() {
				plan.Dirs = append(plan.Dirs, mapped)
				return nil
			}
			plan.Pairs = append(plan.Pairs, mapped)
			plan.Sizes = append(plan.Sizes, fi.Size())
			return nil
		})
		if err != nil {
			return nil, internal.NewError("scan", pair.Source, err)
		}
	}

	logger.Get().Debug().Msgf("展开完成: %d 个文件, %d 个目录", len(plan.Pairs), len(plan.Dirs))
	return plan, nil
}
