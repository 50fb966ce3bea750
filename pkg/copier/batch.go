package copier

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/scanner"
)

// BatchResult 与输入的路径对一一对应
type BatchResult struct {
	Pair   internal.PathPair
	Result Result
	Err    error
	// NotAttempted 因取消或致命错误未开始
	NotAttempted bool
}

// CopyBatch 在有界协程池中并发复制互不依赖的文件，完成顺序不确定。
// 磁盘已满等致命错误出现后，尚未开始的文件不再执行。
func (c *Copier) CopyBatch(ctx context.Context, tok *Token, pairs []internal.PathPair, opts internal.OperationOptions, concurrency int, cb ProgressFunc) []BatchResult {
	results := make([]BatchResult, len(pairs))
	for i, p := range pairs {
		results[i].Pair = p
	}
	if len(pairs) == 0 {
		return results
	}

	if concurrency <= 0 {
		concurrency = internal.DefaultBatchConcurrency
	}
	if concurrency > len(pairs) {
		concurrency = len(pairs)
	}

	var (
		aborted atomic.Bool
		wg      sync.WaitGroup
		cbMu    sync.Mutex
	)
	safeCb := cb
	if cb != nil {
		safeCb = func(u Update) {
			cbMu.Lock()
			defer cbMu.Unlock()
			cb(u)
		}
	}

	task := func(i int) {
		p := pairs[i]
		if aborted.Load() || tok.Cancelled() || ctx.Err() != nil {
			results[i].NotAttempted = true
			return
		}
		r, err := c.CopyWithRetry(ctx, tok, p.Source, p.Destination, opts, safeCb)
		results[i].Result, results[i].Err = r, err
		if c.onFileDone != nil {
			c.onFileDone(results[i])
		}
		if internal.IsFatal(err) {
			if !aborted.Swap(true) {
				logger.Get().Error().Err(err).Msg("目标磁盘不可写，停止剩余文件")
			}
		}
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("创建复制线程池失败，改为顺序执行")
		for i := range pairs {
			task(i)
		}
		return results
	}
	defer pool.Release()

	for i := range pairs {
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			task(i)
		}); err != nil {
			wg.Done()
			task(i)
		}
	}
	wg.Wait()

	return results
}

// MirrorDirs 按顺序创建目标目录，空目录也会保留
func (c *Copier) MirrorDirs(dirs []internal.PathPair) error {
	for _, d := range dirs {
		perm := os.FileMode(0755)
		if info, err := c.fs.Stat(d.Source); err == nil {
			perm = info.Mode().Perm() | 0700
		}
		if err := c.fs.MkdirAll(d.Destination, perm); err != nil {
			return internal.NewError("mkdir", d.Destination, err)
		}
	}
	return nil
}

// CopyDir 先镜像目录结构，再按遍历顺序逐个复制文件。
// 返回的 error 是使剩余文件停止的致命错误或取消。
func (c *Copier) CopyDir(ctx context.Context, tok *Token, srcDir, dstDir string, opts internal.OperationOptions, cb ProgressFunc) ([]BatchResult, error) {
	plan, err := scanner.NewFileWalker(c.fs).Expand([]internal.PathPair{{Source: srcDir, Destination: dstDir}})
	if err != nil {
		return nil, err
	}
	if err := c.MirrorDirs(plan.Dirs); err != nil {
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
		r, err := c.CopyWithRetry(ctx, tok, p.Source, p.Destination, opts, cb)
		results[i].Result, results[i].Err = r, err
		if c.onFileDone != nil {
			c.onFileDone(results[i])
		}
		if kind := internal.Classify(err); kind == internal.KindDiskFull || kind == internal.KindCancelled {
			stop = err
		}
	}

	logger.Get().Info().Msgf("目录复制结束: %s -> %s (%d 个文件)", srcDir, dstDir, len(plan.Pairs))
	return results, stop
}
