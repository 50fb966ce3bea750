// Package volume 判断两个路径是否位于同一存储卷。
package volume

import (
	"os"
	"path/filepath"
)

// Same 报告 a 与 b 是否在同一卷上；尚不存在的路径按最近的已存在父目录判断
func Same(a, b string) bool {
	idA, okA := ID(existingAncestor(a))
	idB, okB := ID(existingAncestor(b))
	if !okA || !okB {
		return false
	}
	return idA == idB
}

// existingAncestor 向上查找第一个存在的路径
func existingAncestor(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for {
		if _, err := os.Lstat(abs); err == nil {
			return abs
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return abs
		}
		abs = parent
	}
}
