package app

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/moyu-x/file-transfer/internal"
)

// Prompter 在终端上询问冲突处理方式
type Prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Decide 实现 internal.ConflictDecider
// 输入 s/o/n/r 分别对应跳过、覆盖、较新时覆盖、重命名，大写表示应用到全部
func (p *Prompter) Decide(info internal.ConflictInfo) internal.ConflictResolution {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n目标已存在: %s\n", info.Destination)
	fmt.Fprintf(p.out, "  源文件:   %d 字节, 修改于 %s %s\n", info.SourceSize, info.SourceModTime.Format("2006-01-02 15:04:05"), info.SourceKind)
	fmt.Fprintf(p.out, "  目标文件: %d 字节, 修改于 %s %s\n", info.DestSize, info.DestModTime.Format("2006-01-02 15:04:05"), info.DestKind)

	for {
		fmt.Fprint(p.out, "[s]跳过 [o]覆盖 [n]较新时覆盖 [r]重命名 (大写应用到全部): ")
		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer == "" && err != nil {
			// 输入已关闭
			return internal.ConflictResolution{Action: internal.ConflictSkip}
		}

		all := answer != strings.ToLower(answer)
		var action internal.ConflictAction
		switch strings.ToLower(answer) {
		case "s":
			action = internal.ConflictSkip
		case "o":
			action = internal.ConflictOverwrite
		case "n":
			action = internal.ConflictOverwriteIfNewer
		case "r":
			action = internal.ConflictRename
		default:
			continue
		}
		return internal.ConflictResolution{Action: action, ApplyToAll: all}
	}
}
