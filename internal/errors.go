package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// ErrorKind 错误分类，决定重试与批量中止策略
type ErrorKind string

const (
	KindTransient    ErrorKind = "transient"
	KindPermission   ErrorKind = "permission"
	KindVerification ErrorKind = "verification"
	KindDiskFull     ErrorKind = "disk_full"
	KindCancelled    ErrorKind = "cancelled"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindInvalidInput ErrorKind = "invalid_input"
	KindUnknown      ErrorKind = "unknown"
)

// Sentinel errors, usable with errors.Is.
var (
	ErrCancelled          = errors.New("transfer: operation cancelled")
	ErrVerificationFailed = errors.New("transfer: verification mismatch")
	ErrDiskFull           = errors.New("transfer: destination full or unwritable")
	ErrSkipped            = errors.New("transfer: skipped by conflict policy")
	ErrDuplicateOperation = errors.New("transfer: operation already tracked")
	ErrOperationNotFound  = errors.New("transfer: operation not found")
	ErrInvalidInput       = errors.New("transfer: invalid input")
	ErrRenameExhausted    = errors.New("transfer: no free rename candidate")
)

// TransferError 带上下文的文件操作错误
type TransferError struct {
	Op   string
	Path string
	Kind ErrorKind
	Err  error
}

func (e *TransferError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewError 包装错误并自动分类
func NewError(op, path string, err error) *TransferError {
	return &TransferError{Op: op, Path: path, Kind: Classify(err), Err: err}
}

// Classify 将错误映射到分类
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var te *TransferError
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}

	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrVerificationFailed):
		return KindVerification
	case errors.Is(err, ErrDiskFull):
		return KindDiskFull
	case errors.Is(err, ErrSkipped), errors.Is(err, ErrRenameExhausted):
		return KindConflict
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	}

	if kind, ok := classifyErrno(err); ok {
		return kind
	}
	return KindUnknown
}

// IsTransient 仅瞬时错误会被重试
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}

// IsFatal 磁盘已满等错误会中止批量中的剩余文件
func IsFatal(err error) bool {
	return Classify(err) == KindDiskFull
}
