package internal

import (
	"fmt"
	"strings"
	"time"
)

// 操作类型
type OperationType string

const (
	OpCopy   OperationType = "copy"
	OpMove   OperationType = "move"
	OpDelete OperationType = "delete"
	OpVerify OperationType = "verify"
)

// Priority 操作优先级，数值越大越先出队
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority 解析命令行或配置中的优先级名称
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return PriorityNormal, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
}

// 操作状态
type OperationStatus string

const (
	StatusQueued     OperationStatus = "queued"
	StatusInProgress OperationStatus = "in_progress"
	StatusPaused     OperationStatus = "paused"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusCancelled  OperationStatus = "cancelled"
)

// IsTerminal 终态之后不再发生任何状态迁移
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// 冲突处理方式
type ConflictAction string

const (
	ConflictSkip             ConflictAction = "skip"
	ConflictOverwrite        ConflictAction = "overwrite"
	ConflictOverwriteIfNewer ConflictAction = "overwrite_if_newer"
	ConflictRename           ConflictAction = "rename"
	ConflictAsk              ConflictAction = "ask"
)

func ParseConflictAction(s string) (ConflictAction, error) {
	switch a := ConflictAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ConflictSkip, ConflictOverwrite, ConflictOverwriteIfNewer, ConflictRename, ConflictAsk:
		return a, nil
	case "newer":
		return ConflictOverwriteIfNewer, nil
	case "":
		return ConflictAsk, nil
	}
	return ConflictAsk, fmt.Errorf("%w: unknown conflict action %q", ErrInvalidInput, s)
}

// 哈希算法
type HashAlgorithm string

const (
	AlgoCRC32  HashAlgorithm = "crc32"
	AlgoXXHash HashAlgorithm = "xxhash"
	AlgoMD5    HashAlgorithm = "md5"
	AlgoSHA256 HashAlgorithm = "sha256"
	AlgoSHA512 HashAlgorithm = "sha512"
)

func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch a := HashAlgorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case AlgoCRC32, AlgoXXHash, AlgoMD5, AlgoSHA256, AlgoSHA512:
		return a, nil
	case "":
		return DefaultHashAlgorithm, nil
	}
	return DefaultHashAlgorithm, fmt.Errorf("%w: unknown hash algorithm %q", ErrInvalidInput, s)
}

// PathPair 一对源/目标路径
type PathPair struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// OperationOptions 入队时指定的选项
type OperationOptions struct {
	VerifyAfter      bool           `json:"verify_after"`
	PreserveMetadata bool           `json:"preserve_metadata"`
	ConflictAction   ConflictAction `json:"conflict_action"`
	// ApplyToAll 固定本次操作中所有冲突的处理方式
	ApplyToAll bool          `json:"apply_to_all,omitempty"`
	Algorithm  HashAlgorithm `json:"algorithm,omitempty"`
}

// DefaultOptions 与对外接口的默认参数一致
func DefaultOptions() OperationOptions {
	return OperationOptions{
		PreserveMetadata: true,
		ConflictAction:   ConflictAsk,
		Algorithm:        DefaultHashAlgorithm,
	}
}

// FileError 单个文件的错误记录
type FileError struct {
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
}

// FileOperation 一个批量任务
type FileOperation struct {
	ID             string           `json:"id"`
	Seq            uint64           `json:"seq"`
	Type           OperationType    `json:"type"`
	Priority       Priority         `json:"priority"`
	Pairs          []PathPair       `json:"pairs"`
	Options        OperationOptions `json:"options"`
	Status         OperationStatus  `json:"status"`
	TotalFiles     int              `json:"total_files"`
	ProcessedFiles int              `json:"processed_files"`
	FailedFiles    int              `json:"failed_files"`
	SkippedFiles   int              `json:"skipped_files"`
	NotAttempted   int              `json:"not_attempted"`
	Errors         []FileError      `json:"errors,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      time.Time        `json:"started_at,omitempty"`
	CompletedAt    time.Time        `json:"completed_at,omitempty"`
	ErrorSummary   string           `json:"error_summary,omitempty"`
}

// Snapshot 返回深拷贝，调用方可在锁外读取
func (op *FileOperation) Snapshot() *FileOperation {
	cp := *op
	cp.Pairs = append([]PathPair(nil), op.Pairs...)
	cp.Errors = append([]FileError(nil), op.Errors...)
	return &cp
}

// HistoryRecord 终态操作的不可变快照
func (op *FileOperation) HistoryRecord() HistoryRecord {
	return HistoryRecord{
		ID:             op.ID,
		Type:           op.Type,
		Status:         op.Status,
		Priority:       op.Priority,
		TotalFiles:     op.TotalFiles,
		ProcessedFiles: op.ProcessedFiles,
		FailedFiles:    op.FailedFiles,
		CreatedAt:      op.CreatedAt,
		StartedAt:      op.StartedAt,
		CompletedAt:    op.CompletedAt,
		ErrorSummary:   op.ErrorSummary,
		Errors:         append([]FileError(nil), op.Errors...),
	}
}

// FileProgress 单个文件的进度
type FileProgress struct {
	Path        string    `json:"path"`
	BytesCopied int64     `json:"bytes_copied"`
	BytesTotal  int64     `json:"bytes_total"`
	StartTime   time.Time `json:"start_time,omitempty"`
	EndTime     time.Time `json:"end_time,omitempty"`
	Error       string    `json:"error,omitempty"`
	Done        bool      `json:"done"`
}

// OperationProgress 操作的汇总进度
type OperationProgress struct {
	ID              string                   `json:"id"`
	Files           map[string]*FileProgress `json:"files"`
	Order           []string                 `json:"order"`
	TotalBytes      int64                    `json:"total_bytes"`
	CopiedBytes     int64                    `json:"copied_bytes"`
	CompletedFiles  int                      `json:"completed_files"`
	FailedFiles     int                      `json:"failed_files"`
	StartTime       time.Time                `json:"start_time"`
	PausedDuration  time.Duration            `json:"paused_duration"`
	ProgressPercent float64                  `json:"progress_percent"`
	// Speed 字节/秒，滚动平均
	Speed float64 `json:"speed"`
	// ETA 未知时为 -1
	ETA time.Duration `json:"eta"`
}

// ConflictInfo 目标已存在时传给决策函数的信息
type ConflictInfo struct {
	Source        string    `json:"source"`
	Destination   string    `json:"destination"`
	SourceSize    int64     `json:"source_size"`
	DestSize      int64     `json:"dest_size"`
	SourceModTime time.Time `json:"source_mod_time"`
	DestModTime   time.Time `json:"dest_mod_time"`
	SourceKind    string    `json:"source_kind,omitempty"`
	DestKind      string    `json:"dest_kind,omitempty"`
}

// ConflictResolution 冲突处理结果: Proceed 到 Path，或 Skip
type ConflictResolution struct {
	Action  ConflictAction `json:"action"`
	Proceed bool           `json:"proceed"`
	Path    string         `json:"path,omitempty"`
	// ApplyToAll 由决策函数返回时，后续冲突沿用同一处理方式
	ApplyToAll bool `json:"apply_to_all,omitempty"`
}

// ConflictDecider 由界面层提供的冲突决策函数
type ConflictDecider func(info ConflictInfo) ConflictResolution

// VerificationResult 校验结果
type VerificationResult struct {
	Source       string        `json:"source"`
	Destination  string        `json:"destination"`
	Algorithm    HashAlgorithm `json:"algorithm"`
	SourceDigest string        `json:"source_digest,omitempty"`
	DestDigest   string        `json:"dest_digest,omitempty"`
	Sampled      bool          `json:"sampled"`
	Match        bool          `json:"match"`
	Error        string        `json:"error,omitempty"`
}

// HistoryRecord 持久化的历史记录
type HistoryRecord struct {
	ID             string          `json:"id"`
	Type           OperationType   `json:"type"`
	Status         OperationStatus `json:"status"`
	Priority       Priority        `json:"priority"`
	TotalFiles     int             `json:"total_files"`
	ProcessedFiles int             `json:"processed_files"`
	FailedFiles    int             `json:"failed_files"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      time.Time       `json:"started_at,omitempty"`
	CompletedAt    time.Time       `json:"completed_at,omitempty"`
	ErrorSummary   string          `json:"error_summary,omitempty"`
	Errors         []FileError     `json:"errors,omitempty"`
}

// ProgressUpdate 推送给观察者的进度事件
type ProgressUpdate struct {
	OperationID string `json:"operation_id"`
	File        string `json:"file"`
	BytesCopied int64  `json:"bytes_copied"`
	BytesTotal  int64  `json:"bytes_total"`
	Done        bool   `json:"done"`
}
