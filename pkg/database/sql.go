package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

// SQLStore 使用纯 Go 的 SQLite 驱动，与 GormStore 共用同一张表结构
type SQLStore struct {
	conn *sql.DB
}

func NewSQLStore(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	conn.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS history_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		total_files INTEGER NOT NULL,
		processed_files INTEGER NOT NULL,
		failed_files INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		error_summary TEXT,
		errors TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_history_operation ON history_records(operation_id);
	`
	if _, err := conn.Exec(createTableSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}

	logger.Get().Info().Msgf("历史数据库初始化完成: %s", dbPath)
	return &SQLStore{conn: conn}, nil
}

func (s *SQLStore) Append(rec internal.HistoryRecord) error {
	entry, err := toEntry(rec)
	if err != nil {
		return fmt.Errorf("序列化错误列表失败: %w", err)
	}

	_, err = s.conn.Exec(
		`INSERT INTO history_records
		(operation_id, type, status, priority, total_files, processed_files, failed_files,
		 created_at, started_at, completed_at, error_summary, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.OperationID, entry.Type, entry.Status, entry.Priority,
		entry.TotalFiles, entry.ProcessedFiles, entry.FailedFiles,
		unixNano(entry.CreatedAt), unixNano(entry.StartedAt), unixNano(entry.CompletedAt),
		entry.ErrorSummary, entry.Errors,
	)
	if err != nil {
		return fmt.Errorf("插入历史记录失败: %w", err)
	}
	return nil
}

func (s *SQLStore) Load() ([]internal.HistoryRecord, error) {
	rows, err := s.conn.Query(`SELECT operation_id, type, status, priority, total_files,
		processed_files, failed_files, created_at, started_at, completed_at,
		COALESCE(error_summary, ''), COALESCE(errors, '')
		FROM history_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}
	defer rows.Close()

	var records []internal.HistoryRecord
	for rows.Next() {
		var (
			e                           HistoryEntry
			created, started, completed sql.NullInt64
		)
		if err := rows.Scan(&e.OperationID, &e.Type, &e.Status, &e.Priority, &e.TotalFiles,
			&e.ProcessedFiles, &e.FailedFiles, &created, &started, &completed,
			&e.ErrorSummary, &e.Errors); err != nil {
			return nil, fmt.Errorf("读取行数据失败: %w", err)
		}
		e.CreatedAt = fromUnixNano(created)
		e.StartedAt = fromUnixNano(started)
		e.CompletedAt = fromUnixNano(completed)

		rec, err := e.record()
		if err != nil {
			return nil, fmt.Errorf("解析历史记录 %s 失败: %w", e.OperationID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历结果集失败: %w", err)
	}
	return records, nil
}

func (s *SQLStore) Close() error {
	return s.conn.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(0, v.Int64)
}
