package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

// JSONStore 整个数组写回文件，先写临时文件再改名，避免半写的日志
type JSONStore struct {
	fs      afero.Fs
	path    string
	mu      sync.Mutex
	records []internal.HistoryRecord
}

// NewJSONStore 加载已有日志；文件不存在视为空，内容损坏返回错误
func NewJSONStore(fs afero.Fs, path string) (*JSONStore, error) {
	s := &JSONStore{fs: fs, path: path}

	data, err := afero.ReadFile(fs, path)
	switch {
	case os.IsNotExist(err):
		logger.Get().Debug().Msgf("历史记录文件不存在，将新建: %s", path)
	case err != nil:
		return nil, fmt.Errorf("读取历史记录失败: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("解析历史记录失败 %s: %w", path, err)
		}
	}

	logger.Get().Info().Msgf("历史记录已加载: %s (%d 条)", path, len(s.records))
	return s, nil
}

func (s *JSONStore) Append(rec internal.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(s.records[:len(s.records):len(s.records)], rec)
	if err := s.write(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *JSONStore) write(records []internal.HistoryRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化历史记录失败: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建历史记录目录失败: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("写入历史记录失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("写入历史记录失败: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("替换历史记录文件失败: %w", err)
	}
	return nil
}

func (s *JSONStore) Load() ([]internal.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]internal.HistoryRecord(nil), s.records...), nil
}

func (s *JSONStore) Close() error {
	return nil
}
