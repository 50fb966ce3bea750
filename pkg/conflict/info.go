package conflict

import (
	"fmt"
	"io"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
)

// fileHeaderSize 文件类型检测所需的文件头部大小（字节）
const fileHeaderSize = 261

const unknownKind = "unknown"

// Info 收集源和目标的大小、修改时间和文件类型，供决策函数展示
func Info(fs afero.Fs, src, dst string) (internal.ConflictInfo, error) {
	info := internal.ConflictInfo{Source: src, Destination: dst}

	var err error
	if info.SourceSize, info.SourceModTime, err = statSize(fs, src); err != nil {
		return info, fmt.Errorf("读取源文件信息失败: %w", err)
	}
	if info.DestSize, info.DestModTime, err = statSize(fs, dst); err != nil {
		return info, fmt.Errorf("读取目标文件信息失败: %w", err)
	}

	info.SourceKind = detectKind(fs, src)
	info.DestKind = detectKind(fs, dst)
	return info, nil
}

// detectKind 读取文件头部并用 filetype 判断 MIME 类型
func detectKind(fs afero.Fs, path string) string {
	file, err := fs.Open(path)
	if err != nil {
		return unknownKind
	}
	defer file.Close()

	head := make([]byte, fileHeaderSize)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		return unknownKind
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return unknownKind
	}
	return kind.MIME.Value
}
