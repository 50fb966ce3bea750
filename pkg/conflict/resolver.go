// Package conflict 决定目标路径已存在时的处理方式。
package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

// Resolver 每个 FileOperation 使用一个实例，"应用到全部" 的选择只在该操作内生效
type Resolver struct {
	fs          afero.Fs
	action      internal.ConflictAction
	pattern     string
	maxAttempts int
	decider     internal.ConflictDecider
	now         func() time.Time

	mu       sync.Mutex
	pinned   internal.ConflictAction
	reserved map[string]bool
}

type Option func(*Resolver)

func WithDefaultAction(action internal.ConflictAction) Option {
	return func(r *Resolver) { r.action = action }
}

// WithPattern 重命名模板，支持 {stem} {suffix} {counter} {timestamp}
func WithPattern(pattern string) Option {
	return func(r *Resolver) {
		if pattern != "" {
			r.pattern = pattern
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithDecider 注册 Ask 使用的决策函数，未注册时 Ask 退化为 Skip
func WithDecider(decider internal.ConflictDecider) Option {
	return func(r *Resolver) { r.decider = decider }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(fs afero.Fs, opts ...Option) *Resolver {
	r := &Resolver{
		fs:          fs,
		action:      internal.ConflictAsk,
		pattern:     internal.DefaultRenamePattern,
		maxAttempts: internal.DefaultMaxRenameAttempts,
		now:         time.Now,
		reserved:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyToAll 固定后续所有冲突的处理方式
func (r *Resolver) ApplyToAll(action internal.ConflictAction) {
	r.mu.Lock()
	r.pinned = action
	r.mu.Unlock()
}

// Pinned 返回当前固定的处理方式，未固定时为空
func (r *Resolver) Pinned() internal.ConflictAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pinned
}

// Resolve 目标不存在时直接 Proceed；否则按配置的处理方式决定
func (r *Resolver) Resolve(src, dst string) (internal.ConflictResolution, error) {
	exists, err := afero.Exists(r.fs, dst)
	if err != nil {
		return internal.ConflictResolution{}, fmt.Errorf("检查目标文件失败: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !exists && !r.reserved[dst] {
		return proceed(dst), nil
	}

	action := r.action
	if r.pinned != "" {
		action = r.pinned
	}

	res, err := r.apply(action, src, dst)
	if err != nil {
		return res, err
	}

	logger.Get().Debug().
		Str("source", src).
		Str("destination", dst).
		Str("action", string(res.Action)).
		Bool("proceed", res.Proceed).
		Str("path", res.Path).
		Msg("目标已存在，冲突已处理")
	return res, nil
}

func (r *Resolver) apply(action internal.ConflictAction, src, dst string) (internal.ConflictResolution, error) {
	switch action {
	case internal.ConflictSkip:
		return skip(), nil

	case internal.ConflictOverwrite:
		res := proceed(dst)
		res.Action = internal.ConflictOverwrite
		return res, nil

	case internal.ConflictOverwriteIfNewer:
		newer, err := r.sourceIsNewer(src, dst)
		if err != nil {
			return internal.ConflictResolution{}, err
		}
		if !newer {
			res := skip()
			res.Action = internal.ConflictOverwriteIfNewer
			return res, nil
		}
		res := proceed(dst)
		res.Action = internal.ConflictOverwriteIfNewer
		return res, nil

	case internal.ConflictRename:
		alt, err := r.alternatePath(dst)
		if err != nil {
			return internal.ConflictResolution{}, err
		}
		r.reserved[alt] = true
		return internal.ConflictResolution{Action: internal.ConflictRename, Proceed: true, Path: alt}, nil

	case internal.ConflictAsk:
		if r.decider == nil {
			logger.Get().Warn().Str("destination", dst).Msg("未注册冲突决策函数，默认跳过")
			return skip(), nil
		}
		info, err := Info(r.fs, src, dst)
		if err != nil {
			return internal.ConflictResolution{}, err
		}
		decision := r.decider(info)
		if decision.Action == "" || decision.Action == internal.ConflictAsk {
			return skip(), nil
		}
		if decision.ApplyToAll {
			r.pinned = decision.Action
		}
		if decision.Action == internal.ConflictRename && decision.Path != "" {
			r.reserved[decision.Path] = true
			decision.Proceed = true
			return decision, nil
		}
		return r.apply(decision.Action, src, dst)
	}

	return internal.ConflictResolution{}, fmt.Errorf("%w: conflict action %q", internal.ErrInvalidInput, action)
}

func (r *Resolver) sourceIsNewer(src, dst string) (bool, error) {
	srcInfo, err := r.fs.Stat(src)
	if err != nil {
		return false, fmt.Errorf("读取源文件信息失败: %w", err)
	}
	dstInfo, err := r.fs.Stat(dst)
	if err != nil {
		return false, fmt.Errorf("读取目标文件信息失败: %w", err)
	}
	return srcInfo.ModTime().After(dstInfo.ModTime()), nil
}

// alternatePath 递增 {counter} 直到找到空闲的文件名
func (r *Resolver) alternatePath(dst string) (string, error) {
	dir := filepath.Dir(dst)
	base := filepath.Base(dst)
	suffix := filepath.Ext(base)
	stem := strings.TrimSuffix(base, suffix)
	if stem == "" {
		// 以点开头的文件，例如 .bashrc
		stem, suffix = base, ""
	}
	timestamp := strconv.FormatInt(r.now().Unix(), 10)
	hasCounter := strings.Contains(r.pattern, "{counter}")

	for counter := 1; counter <= r.maxAttempts; counter++ {
		name := strings.NewReplacer(
			"{stem}", stem,
			"{suffix}", suffix,
			"{counter}", strconv.Itoa(counter),
			"{timestamp}", timestamp,
		).Replace(r.pattern)
		candidate := filepath.Join(dir, name)

		exists, err := afero.Exists(r.fs, candidate)
		if err != nil {
			return "", fmt.Errorf("检查候选文件名失败: %w", err)
		}
		if !exists && !r.reserved[candidate] && candidate != dst {
			return candidate, nil
		}

		if counter == 1 {
			logger.Get().Debug().Str("candidate", candidate).Msg("候选文件名已被占用，继续尝试")
		}
		if !hasCounter {
			break
		}
	}

	return "", fmt.Errorf("%w: %s after %d attempts", internal.ErrRenameExhausted, dst, r.maxAttempts)
}

// Release 释放已分配但未使用的重命名候选
func (r *Resolver) Release(path string) {
	r.mu.Lock()
	delete(r.reserved, path)
	r.mu.Unlock()
}

func proceed(path string) internal.ConflictResolution {
	return internal.ConflictResolution{Proceed: true, Path: path}
}

func skip() internal.ConflictResolution {
	return internal.ConflictResolution{Action: internal.ConflictSkip}
}

// statSize 目标可能在检查后被删除，此时按空文件处理
func statSize(fs afero.Fs, path string) (int64, time.Time, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}
