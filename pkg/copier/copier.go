// Package copier streams files from source to destination in adaptive
// chunks, honouring conflict policy, pause/cancel tokens and optional
// post-copy verification.
package copier

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/buffer"
	"github.com/moyu-x/file-transfer/pkg/conflict"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/verifier"
	"github.com/moyu-x/file-transfer/pkg/volume"
)

// Resolver 决定目标已存在时如何处理
type Resolver interface {
	Resolve(src, dst string) (internal.ConflictResolution, error)
}

// Verifier 比较源与目标内容
type Verifier interface {
	Verify(ctx context.Context, src, dst string, algo internal.HashAlgorithm, sampled bool) internal.VerificationResult
}

// Update 每写完一个块回调一次；Reset 表示重试前该文件进度归零
type Update struct {
	Source      string
	Destination string
	// Pair 提交时的源/目标，Destination 可能是冲突重命名后的路径
	Pair   internal.PathPair
	Copied int64
	Total  int64
	Reset  bool
}

type ProgressFunc func(Update)

// ForPair 返回的回调把 Update.Pair 设为 p
func (cb ProgressFunc) ForPair(p internal.PathPair) ProgressFunc {
	if cb == nil {
		return nil
	}
	return func(u Update) {
		u.Pair = p
		cb(u)
	}
}

// Result 单个文件的复制结果
type Result struct {
	Source       string
	Destination  string
	Bytes        int64
	Skipped      bool
	Verified     bool
	Verification *internal.VerificationResult
	Attempts     int
	Duration     time.Duration
	// Paused 暂停时长，不计入吞吐量
	Paused time.Duration
}

// Throughput 字节/秒，扣除暂停时间
func (r Result) Throughput() float64 {
	active := r.Duration - r.Paused
	if active <= 0 {
		return 0
	}
	return float64(r.Bytes) / active.Seconds()
}

type Copier struct {
	fs               afero.Fs
	resolver         Resolver
	verifier         Verifier
	adaptive         bool
	multiplier       int
	maxBuffer        int
	retryAttempts    int
	retryBaseDelay   time.Duration
	sampledThreshold int64
	sleep            func(ctx context.Context, d time.Duration) error
	sameVolume       func(a, b string) bool
	now              func() time.Time
	onFileDone       func(BatchResult)
}

type Option func(*Copier)

func WithAdaptiveBuffer(enabled bool) Option {
	return func(c *Copier) { c.adaptive = enabled }
}

func WithSameVolumeMultiplier(n int) Option {
	return func(c *Copier) {
		if n > 0 {
			c.multiplier = n
		}
	}
}

func WithMaxBufferSize(n int) Option {
	return func(c *Copier) {
		if n > 0 {
			c.maxBuffer = n
		}
	}
}

// WithRetry 设置总尝试次数与首次退避时长
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Copier) {
		if attempts > 0 {
			c.retryAttempts = attempts
		}
		if baseDelay >= 0 {
			c.retryBaseDelay = baseDelay
		}
	}
}

// WithSampledVerifyThreshold 不小于该大小的文件使用抽样校验，0 表示始终完整校验
func WithSampledVerifyThreshold(n int64) Option {
	return func(c *Copier) { c.sampledThreshold = n }
}

// WithSleep 替换重试退避的等待函数
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Copier) { c.sleep = fn }
}

func WithVolumeFunc(fn func(a, b string) bool) Option {
	return func(c *Copier) { c.sameVolume = fn }
}

// WithFileDone 批量和目录复制中每个文件结束后回调，可能并发调用
func WithFileDone(fn func(BatchResult)) Option {
	return func(c *Copier) { c.onFileDone = fn }
}

// New resolver 为 nil 时按每次调用的 ConflictAction 新建；verifier 为 nil 时使用默认校验器
func New(fs afero.Fs, resolver Resolver, v Verifier, opts ...Option) *Copier {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	c := &Copier{
		fs:               fs,
		resolver:         resolver,
		verifier:         v,
		adaptive:         true,
		multiplier:       internal.DefaultSameVolumeMultiplier,
		maxBuffer:        internal.MaxBufferSize,
		retryAttempts:    internal.DefaultRetryAttempts,
		retryBaseDelay:   internal.DefaultRetryBaseDelay,
		sampledThreshold: internal.DefaultSampledVerifyThreshold,
		sameVolume:       volume.Same,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.verifier == nil {
		c.verifier = verifier.New(fs)
	}
	return c
}

// BufferSize 按文件大小选择缓冲区，同卷复制放大 multiplier 倍，不超过上限
func (c *Copier) BufferSize(fileSize int64, sameVolume bool) int {
	if !c.adaptive {
		return internal.FixedBufferSize
	}
	size := buffer.SizeFor(fileSize)
	if sameVolume {
		size *= c.multiplier
	}
	if size > c.maxBuffer {
		size = c.maxBuffer
	}
	return size
}

// Copy 单次尝试复制
func (c *Copier) Copy(ctx context.Context, tok *Token, src, dst string, opts internal.OperationOptions, cb ProgressFunc) (Result, error) {
	return c.run(ctx, tok, src, dst, opts, cb, 1, true)
}

// CopyWithRetry 瞬时错误按 base, 2*base, 4*base... 退避重试
func (c *Copier) CopyWithRetry(ctx context.Context, tok *Token, src, dst string, opts internal.OperationOptions, cb ProgressFunc) (Result, error) {
	return c.run(ctx, tok, src, dst, opts, cb, c.retryAttempts, true)
}

// CopyResolved 与 CopyWithRetry 相同，但 dst 的冲突已由调用方处理，直接写入 dst
func (c *Copier) CopyResolved(ctx context.Context, tok *Token, src, dst string, opts internal.OperationOptions, cb ProgressFunc) (Result, error) {
	return c.run(ctx, tok, src, dst, opts, cb, c.retryAttempts, false)
}

func (c *Copier) run(ctx context.Context, tok *Token, src, dst string, opts internal.OperationOptions, cb ProgressFunc, attempts int, resolve bool) (Result, error) {
	log := logger.Get()
	cb = cb.ForPair(internal.PathPair{Source: src, Destination: dst})

	info, err := c.fs.Stat(src)
	if err != nil {
		return Result{Source: src, Destination: dst}, internal.NewError("copy", src, err)
	}
	if info.IsDir() {
		return Result{Source: src, Destination: dst}, internal.NewError("copy", src, fmt.Errorf("%w: source is a directory", internal.ErrInvalidInput))
	}

	if resolve {
		resolution, err := c.resolverFor(opts).Resolve(src, dst)
		if err != nil {
			return Result{Source: src, Destination: dst}, internal.NewError("resolve", dst, err)
		}
		if !resolution.Proceed {
			log.Warn().Str("source", src).Str("destination", dst).Msg("目标已存在，跳过")
			return Result{Source: src, Destination: dst, Skipped: true}, nil
		}
		dst = resolution.Path
	}

	var (
		result  Result
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, lastErr = c.transfer(ctx, tok, src, dst, info, opts, cb)
		result.Attempts = attempt
		if lastErr == nil {
			break
		}
		if !internal.IsTransient(lastErr) || attempt == attempts {
			break
		}

		delay := c.retryBaseDelay << (attempt - 1)
		log.Warn().Err(lastErr).Msgf("复制失败，%v 后重试 (%d/%d): %s", delay, attempt, attempts, src)
		emit(cb, Update{Source: src, Destination: dst, Total: info.Size(), Reset: true})

		if err := c.backoff(ctx, tok, delay); err != nil {
			lastErr = internal.NewError("copy", src, internal.ErrCancelled)
			break
		}
	}

	if lastErr != nil {
		c.release(dst)
		if internal.Classify(lastErr) != internal.KindCancelled {
			log.Error().Err(lastErr).Msgf("复制失败: %s", src)
		}
		return result, lastErr
	}

	if opts.VerifyAfter {
		if err := c.verify(ctx, tok, &result, info.Size(), opts.Algorithm); err != nil {
			return result, err
		}
	}

	log.Debug().Msgf("复制完成: %s -> %s (%d 字节)", src, dst, result.Bytes)
	return result, nil
}

// transfer 写入同目录下的临时文件，完成后改名；失败或取消时删除临时文件
func (c *Copier) transfer(ctx context.Context, tok *Token, src, dst string, info os.FileInfo, opts internal.OperationOptions, cb ProgressFunc) (Result, error) {
	start := c.now()
	result := Result{Source: src, Destination: dst}
	finish := func() {
		result.Duration = c.now().Sub(start)
	}

	paused, err := tok.Wait(ctx)
	result.Paused += paused
	if err != nil {
		finish()
		return result, internal.NewError("copy", src, err)
	}

	size := info.Size()
	bufSize := c.BufferSize(size, c.sameVolume(src, dst))

	if err := c.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		finish()
		return result, internal.NewError("mkdir", filepath.Dir(dst), err)
	}

	in, err := c.fs.Open(src)
	if err != nil {
		finish()
		return result, internal.NewError("open", src, err)
	}
	defer in.Close()

	partial := partialPath(dst)
	out, err := c.fs.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0200)
	if err != nil {
		finish()
		return result, internal.NewError("create", dst, err)
	}

	fail := func(err error) (Result, error) {
		out.Close()
		if rmErr := c.fs.Remove(partial); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Get().Warn().Err(rmErr).Msgf("删除未完成文件失败: %s", partial)
		}
		finish()
		return result, err
	}

	buf := buffer.Get(bufSize)
	defer buffer.Put(buf)

	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fail(internal.NewError("write", dst, werr))
			}
			result.Bytes += int64(n)
			emit(cb, Update{Source: src, Destination: dst, Copied: result.Bytes, Total: size})

			paused, err := tok.Wait(ctx)
			result.Paused += paused
			if err != nil {
				logger.Get().Info().Msgf("复制已取消，删除未完成文件: %s", dst)
				return fail(internal.NewError("copy", dst, err))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(internal.NewError("read", src, rerr))
		}
	}

	if err := out.Close(); err != nil {
		c.fs.Remove(partial)
		finish()
		return result, internal.NewError("write", dst, err)
	}
	if err := c.fs.Rename(partial, dst); err != nil {
		c.fs.Remove(partial)
		finish()
		return result, internal.NewError("rename", dst, err)
	}

	if opts.PreserveMetadata {
		c.preserve(dst, info)
	}

	finish()
	return result, nil
}

func (c *Copier) verify(ctx context.Context, tok *Token, result *Result, size int64, algo internal.HashAlgorithm) error {
	sampled := c.sampledThreshold > 0 && size >= c.sampledThreshold
	vr := c.verifier.Verify(verifier.WithCheckpoint(ctx, tok), result.Source, result.Destination, algo, sampled)
	result.Verification = &vr
	if vr.Match {
		result.Verified = true
		return nil
	}
	if ctx.Err() != nil || tok.Cancelled() {
		return internal.NewError("verify", result.Destination, internal.ErrCancelled)
	}
	logger.Get().Error().Str("error", vr.Error).Msgf("复制后校验失败: %s", result.Destination)
	return &internal.TransferError{
		Op:   "verify",
		Path: result.Destination,
		Kind: internal.KindVerification,
		Err:  internal.ErrVerificationFailed,
	}
}

// preserve 失败只记录日志，不影响复制结果
func (c *Copier) preserve(dst string, info os.FileInfo) {
	if err := c.fs.Chmod(dst, info.Mode().Perm()); err != nil {
		logger.Get().Warn().Err(err).Msgf("保留权限失败: %s", dst)
	}
	if err := c.fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		logger.Get().Warn().Err(err).Msgf("保留修改时间失败: %s", dst)
	}
}

func (c *Copier) resolverFor(opts internal.OperationOptions) Resolver {
	if c.resolver != nil {
		return c.resolver
	}
	return conflict.NewResolver(c.fs, conflict.WithDefaultAction(opts.ConflictAction))
}

// release 释放改名时预留的目标路径
func (c *Copier) release(path string) {
	if r, ok := c.resolver.(interface{ Release(string) }); ok {
		r.Release(path)
	}
}

func (c *Copier) backoff(ctx context.Context, tok *Token, d time.Duration) error {
	if c.sleep != nil {
		if err := c.sleep(ctx, d); err != nil {
			return err
		}
		if tok.Cancelled() {
			return internal.ErrCancelled
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return internal.ErrCancelled
	case <-tok.Done():
		return internal.ErrCancelled
	}
}

func partialPath(dst string) string {
	return filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".part")
}

func emit(cb ProgressFunc, u Update) {
	if cb != nil {
		cb(u)
	}
}
