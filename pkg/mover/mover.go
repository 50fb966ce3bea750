// Package mover moves files by atomic rename on the same volume and by
// copy, verify and delete across volumes.
package mover

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/conflict"
	"github.com/moyu-x/file-transfer/pkg/copier"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/scanner"
	"github.com/moyu-x/file-transfer/pkg/verifier"
	"github.com/moyu-x/file-transfer/pkg/volume"
)

type Strategy string

const (
	StrategyRename     Strategy = "rename"
	StrategyCopyDelete Strategy = "copy_delete"
)

// Copier 跨卷移动时使用的复制实现
type Copier interface {
	CopyResolved(ctx context.Context, tok *copier.Token, src, dst string, opts internal.OperationOptions, cb copier.ProgressFunc) (copier.Result, error)
	MirrorDirs(dirs []internal.PathPair) error
}

type Result struct {
	Strategy     Strategy
	Source       string
	Destination  string
	Bytes        int64
	Skipped      bool
	Verified     bool
	Verification *internal.VerificationResult
}

type BatchResult struct {
	Pair         internal.PathPair
	Result       Result
	Err          error
	NotAttempted bool
}

type Mover struct {
	fs               afero.Fs
	copier           Copier
	verifier         copier.Verifier
	resolver         copier.Resolver
	sameVolume       func(a, b string) bool
	sampledThreshold int64
}

type Option func(*Mover)

func WithVolumeFunc(fn func(a, b string) bool) Option {
	return func(m *Mover) { m.sameVolume = fn }
}

// WithResolver 与复制共用同一个冲突处理实例
func WithResolver(r copier.Resolver) Option {
	return func(m *Mover) { m.resolver = r }
}

func WithSampledVerifyThreshold(n int64) Option {
	return func(m *Mover) { m.sampledThreshold = n }
}

func New(fs afero.Fs, c Copier, v copier.Verifier, opts ...Option) *Mover {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	m := &Mover{
		fs:               fs,
		copier:           c,
		verifier:         v,
		sameVolume:       volume.Same,
		sampledThreshold: internal.DefaultSampledVerifyThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.verifier == nil {
		m.verifier = verifier.New(fs)
	}
	if m.copier == nil {
		m.copier = copier.New(fs, m.resolver, m.verifier)
	}
	return m
}

// Strategy 同卷改名，跨卷复制后删除；目标不存在时按最近的父目录判断
func (m *Mover) Strategy(src, dst string) Strategy {
	if m.sameVolume(src, dst) {
		return StrategyRename
	}
	return StrategyCopyDelete
}

// Move 冲突只处理一次，两种策略都写入处理后的目标路径
func (m *Mover) Move(ctx context.Context, tok *copier.Token, src, dst string, opts internal.OperationOptions, cb copier.ProgressFunc) (Result, error) {
	info, err := m.fs.Stat(src)
	if err != nil {
		return Result{Source: src, Destination: dst}, internal.NewError("move", src, err)
	}
	if info.IsDir() {
		return Result{Source: src, Destination: dst}, internal.NewError("move", src, fmt.Errorf("%w: source is a directory", internal.ErrInvalidInput))
	}
	cb = cb.ForPair(internal.PathPair{Source: src, Destination: dst})

	if _, err := tok.Wait(ctx); err != nil {
		return Result{Source: src, Destination: dst}, internal.NewError("move", src, err)
	}

	resolution, err := m.resolverFor(opts).Resolve(src, dst)
	if err != nil {
		return Result{Source: src, Destination: dst}, internal.NewError("resolve", dst, err)
	}
	if !resolution.Proceed {
		logger.Get().Warn().Str("source", src).Str("destination", dst).Msg("目标已存在，跳过")
		return Result{Source: src, Destination: dst, Skipped: true}, nil
	}
	target := resolution.Path

	if m.Strategy(src, target) == StrategyRename {
		result, err := m.rename(src, target, info.Size(), cb)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, syscall.EXDEV) {
			m.release(target)
			return result, err
		}
		logger.Get().Debug().Msgf("跨设备重命名失败，改为复制后删除: %s", src)
	}

	result, err := m.copyDelete(ctx, tok, src, target, info.Size(), opts, cb)
	if err != nil {
		m.release(target)
	}
	return result, err
}

// rename 不传输任何字节，进度直接到 100%
func (m *Mover) rename(src, dst string, size int64, cb copier.ProgressFunc) (Result, error) {
	result := Result{Strategy: StrategyRename, Source: src, Destination: dst}

	if err := m.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return result, internal.NewError("mkdir", filepath.Dir(dst), err)
	}
	if err := m.fs.Rename(src, dst); err != nil {
		return result, internal.NewError("rename", src, err)
	}

	result.Bytes = size
	if cb != nil {
		cb(copier.Update{Source: src, Destination: dst, Copied: size, Total: size})
	}
	logger.Get().Debug().Msgf("重命名完成: %s -> %s", src, dst)
	return result, nil
}

// copyDelete 仅在校验通过或未启用校验时删除源文件；dst 的冲突已经处理过
func (m *Mover) copyDelete(ctx context.Context, tok *copier.Token, src, dst string, size int64, opts internal.OperationOptions, cb copier.ProgressFunc) (Result, error) {
	result := Result{Strategy: StrategyCopyDelete, Source: src, Destination: dst}

	copyOpts := opts
	copyOpts.VerifyAfter = false
	cr, err := m.copier.CopyResolved(ctx, tok, src, dst, copyOpts, cb)
	result.Destination = cr.Destination
	result.Bytes = cr.Bytes
	if err != nil {
		return result, err
	}
	if cr.Skipped {
		result.Skipped = true
		return result, nil
	}

	if opts.VerifyAfter {
		sampled := m.sampledThreshold > 0 && size >= m.sampledThreshold
		vr := m.verifier.Verify(verifier.WithCheckpoint(ctx, tok), src, cr.Destination, opts.Algorithm, sampled)
		result.Verification = &vr
		if !vr.Match {
			if ctx.Err() != nil || tok.Cancelled() {
				return result, internal.NewError("verify", cr.Destination, internal.ErrCancelled)
			}
			logger.Get().Error().Str("error", vr.Error).Msgf("移动校验失败，保留源文件: %s", src)
			return result, &internal.TransferError{
				Op:   "verify",
				Path: cr.Destination,
				Kind: internal.KindVerification,
				Err:  internal.ErrVerificationFailed,
			}
		}
		result.Verified = true
	}

	if err := m.fs.Remove(src); err != nil {
		return result, internal.NewError("remove", src, err)
	}
	logger.Get().Debug().Msgf("移动完成: %s -> %s", src, cr.Destination)
	return result, nil
}

// MoveDir 同卷且目标不存在时整体改名；否则逐个移动文件，再自底向上删除空的源目录
func (m *Mover) MoveDir(ctx context.Context, tok *copier.Token, srcDir, dstDir string, opts internal.OperationOptions, cb copier.ProgressFunc) ([]BatchResult, error) {
	plan, err := scanner.NewFileWalker(m.fs).Expand([]internal.PathPair{{Source: srcDir, Destination: dstDir}})
	if err != nil {
		return nil, err
	}

	exists, err := afero.Exists(m.fs, dstDir)
	if err != nil {
		return nil, internal.NewError("move", dstDir, err)
	}
	if !exists && m.Strategy(srcDir, dstDir) == StrategyRename {
		if _, err := tok.Wait(ctx); err != nil {
			return nil, internal.NewError("move", srcDir, err)
		}
		if err := m.fs.MkdirAll(filepath.Dir(dstDir), 0755); err != nil {
			return nil, internal.NewError("mkdir", filepath.Dir(dstDir), err)
		}
		err := m.fs.Rename(srcDir, dstDir)
		if err != nil && !errors.Is(err, syscall.EXDEV) {
			return nil, internal.NewError("rename", srcDir, err)
		}
		if err == nil {
			results := make([]BatchResult, len(plan.Pairs))
			for i, p := range plan.Pairs {
				results[i] = BatchResult{Pair: p, Result: Result{
					Strategy:    StrategyRename,
					Source:      p.Source,
					Destination: p.Destination,
					Bytes:       plan.Sizes[i],
				}}
				if cb != nil {
					cb(copier.Update{Source: p.Source, Destination: p.Destination, Pair: p, Copied: plan.Sizes[i], Total: plan.Sizes[i]})
				}
			}
			logger.Get().Info().Msgf("目录重命名完成: %s -> %s", srcDir, dstDir)
			return results, nil
		}
	}

	if err := m.copier.MirrorDirs(plan.Dirs); err != nil {
		return nil, err
	}

	results := make([]BatchResult, len(plan.Pairs))
	var stop error
	for i, p := range plan.Pairs {
		results[i].Pair = p
		if stop != nil {
			results[i].NotAttempted = true
			continue
		}
		r, err := m.Move(ctx, tok, p.Source, p.Destination, opts, cb)
		results[i].Result, results[i].Err = r, err
		if kind := internal.Classify(err); kind == internal.KindDiskFull || kind == internal.KindCancelled {
			stop = err
		}
	}

	m.RemoveEmptyDirs(plan.Dirs)
	return results, stop
}

// RemoveEmptyDirs 按深度从深到浅删除已清空的源目录，非空目录保留
func (m *Mover) RemoveEmptyDirs(dirs []internal.PathPair) int {
	sources := make([]string, 0, len(dirs))
	for _, d := range dirs {
		sources = append(sources, d.Source)
	}
	sort.Slice(sources, func(i, j int) bool {
		return len(sources[i]) > len(sources[j])
	})

	removed := 0
	for _, dir := range sources {
		empty, err := afero.IsEmpty(m.fs, dir)
		if err != nil || !empty {
			continue
		}
		if err := m.fs.Remove(dir); err != nil {
			logger.Get().Warn().Err(err).Msgf("删除空目录失败: %s", dir)
			continue
		}
		removed++
	}
	return removed
}

func (m *Mover) resolverFor(opts internal.OperationOptions) copier.Resolver {
	if m.resolver != nil {
		return m.resolver
	}
	return conflict.NewResolver(m.fs, conflict.WithDefaultAction(opts.ConflictAction))
}

func (m *Mover) release(path string) {
	if r, ok := m.resolver.(interface{ Release(string) }); ok {
		r.Release(path)
	}
}
