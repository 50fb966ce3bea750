//go:build unix

package internal

import (
	"errors"

	"golang.org/x/sys/unix"
)

func classifyErrno(err error) (ErrorKind, bool) {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return "", false
	}

	switch errno {
	case unix.ENOSPC, unix.EDQUOT, unix.EROFS, unix.EFBIG:
		return KindDiskFull, true
	case unix.EACCES, unix.EPERM:
		return KindPermission, true
	case unix.EAGAIN, unix.EBUSY, unix.EINTR, unix.ETXTBSY, unix.EIO, unix.ETIMEDOUT, unix.ESTALE:
		return KindTransient, true
	case unix.ENOENT:
		return KindNotFound, true
	}
	return "", false
}
