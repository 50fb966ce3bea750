//go:build unix

package volume

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// ID 返回路径所在设备号
func ID(path string) (string, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return "", false
	}
	return strconv.FormatUint(uint64(st.Dev), 10), true
}
