//go:build !unix

package volume

import (
	"path/filepath"
	"strings"
)

// ID 返回盘符或 UNC 共享名
func ID(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	v := filepath.VolumeName(abs)
	if v == "" {
		return "", false
	}
	return strings.ToUpper(v), true
}
