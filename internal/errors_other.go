//go:build !unix

package internal

import (
	"errors"
	"syscall"
)

// Windows 下共享冲突等错误码同样按瞬时错误处理
const (
	errorSharingViolation syscall.Errno = 32
	errorLockViolation    syscall.Errno = 33
	errorHandleDiskFull   syscall.Errno = 39
	errorDiskFull         syscall.Errno = 112
)

func classifyErrno(err error) (ErrorKind, bool) {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return "", false
	}

	switch errno {
	case errorDiskFull, errorHandleDiskFull:
		return KindDiskFull, true
	case errorSharingViolation, errorLockViolation:
		return KindTransient, true
	}
	return "", false
}
