package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

// HistoryEntry history_records 表的一行
type HistoryEntry struct {
	ID             int64     `gorm:"primaryKey"`
	OperationID    string    `gorm:"index;not null"`
	Type           string    `gorm:"not null"`
	Status         string    `gorm:"index;not null"`
	Priority       int       `gorm:"not null"`
	TotalFiles     int       `gorm:"not null"`
	ProcessedFiles int       `gorm:"not null"`
	FailedFiles    int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	StartedAt      time.Time
	CompletedAt    time.Time
	ErrorSummary   string
	// Errors FileError 列表的 JSON
	Errors string
}

func (HistoryEntry) TableName() string {
	return "history_records"
}

func toEntry(rec internal.HistoryRecord) (HistoryEntry, error) {
	entry := HistoryEntry{
		OperationID:    rec.ID,
		Type:           string(rec.Type),
		Status:         string(rec.Status),
		Priority:       int(rec.Priority),
		TotalFiles:     rec.TotalFiles,
		ProcessedFiles: rec.ProcessedFiles,
		FailedFiles:    rec.FailedFiles,
		CreatedAt:      rec.CreatedAt,
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
		ErrorSummary:   rec.ErrorSummary,
	}
	if len(rec.Errors) > 0 {
		data, err := json.Marshal(rec.Errors)
		if err != nil {
			return entry, err
		}
		entry.Errors = string(data)
	}
	return entry, nil
}

func (e HistoryEntry) record() (internal.HistoryRecord, error) {
	rec := internal.HistoryRecord{
		ID:             e.OperationID,
		Type:           internal.OperationType(e.Type),
		Status:         internal.OperationStatus(e.Status),
		Priority:       internal.Priority(e.Priority),
		TotalFiles:     e.TotalFiles,
		ProcessedFiles: e.ProcessedFiles,
		FailedFiles:    e.FailedFiles,
		CreatedAt:      e.CreatedAt,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
		ErrorSummary:   e.ErrorSummary,
	}
	if e.Errors != "" {
		if err := json.Unmarshal([]byte(e.Errors), &rec.Errors); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(dbPath string) (*GormStore, error) {
	logger.Get().Info().Msgf("初始化历史数据库，路径: %s", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Get().Error().Err(err).Msgf("创建数据库目录失败: %s", filepath.Dir(dbPath))
		return nil, err
	}

	dsn := dbPath + "?_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Get().Error().Err(err).Msg("打开数据库连接失败")
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Get().Error().Err(err).Msg("获取数据库连接失败")
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&HistoryEntry{}); err != nil {
		logger.Get().Error().Err(err).Msg("创建数据库表失败")
		sqlDB.Close()
		return nil, err
	}

	logger.Get().Info().Msg("历史数据库初始化完成")
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(rec internal.HistoryRecord) error {
	entry, err := toEntry(rec)
	if err != nil {
		return fmt.Errorf("序列化错误列表失败: %w", err)
	}
	if err := s.db.Create(&entry).Error; err != nil {
		logger.Get().Error().Err(err).Msgf("插入历史记录失败: %s", rec.ID)
		return err
	}
	logger.Get().Debug().Msgf("插入历史记录成功: %s (%s)", rec.ID, rec.Status)
	return nil
}

func (s *GormStore) Load() ([]internal.HistoryRecord, error) {
	var entries []HistoryEntry
	if err := s.db.Order("id asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}

	records := make([]internal.HistoryRecord, 0, len(entries))
	for _, e := range entries {
		rec, err := e.record()
		if err != nil {
			return nil, fmt.Errorf("解析历史记录 %s 失败: %w", e.OperationID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *GormStore) Close() error {
	logger.Get().Info().Msg("关闭数据库连接")
	sqlDB, err := s.db.DB()
	if err != nil {
		logger.Get().Error().Err(err).Msg("获取数据库连接失败")
		return err
	}
	return sqlDB.Close()
}
