// Package database persists HistoryRecords for finished operations.
//
// Three append-only backends are available: a JSON array file (default),
// SQLite through gorm, and SQLite through the pure-Go modernc driver for
// builds without cgo.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
)

const (
	BackendJSON       = "json"
	BackendSQLite     = "sqlite"
	BackendSQLitePure = "sqlite-pure"
)

// Store 历史记录存储，只追加
type Store interface {
	Append(rec internal.HistoryRecord) error
	Load() ([]internal.HistoryRecord, error)
	Close() error
}

// Open 按名称创建存储，path 支持 ~ 开头
func Open(backend, path string) (Store, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("扩展历史记录路径失败: %w", err)
	}

	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return NewJSONStore(afero.NewOsFs(), expanded)
	case BackendSQLite:
		return NewGormStore(expanded)
	case BackendSQLitePure:
		return NewSQLStore(expanded)
	}
	return nil, fmt.Errorf("%w: history backend %q", internal.ErrInvalidInput, backend)
}

func expandPath(path string) (string, error) {
	if len(path) >= 2 && path[0] == '~' && (path[1] == '/' || path[1] == '\\') {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
