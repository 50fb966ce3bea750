package operations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/conflict"
	"github.com/moyu-x/file-transfer/pkg/copier"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/mover"
	"github.com/moyu-x/file-transfer/pkg/scanner"
	"github.com/moyu-x/file-transfer/pkg/verifier"
)

// execute 在工作协程中运行一个操作直到终态
func (m *Manager) execute(e *entry) {
	op := e.op
	id := op.ID
	opts := op.Options

	plan, err := scanner.NewFileWalker(m.fs).Expand(op.Pairs)
	if err != nil {
		m.abort(e, err)
		return
	}

	m.mu.Lock()
	op.TotalFiles = len(plan.Pairs)
	m.mu.Unlock()

	// 同一个源可以复制到多个目标，进度按目标区分
	dests := make([]string, len(plan.Pairs))
	for i, p := range plan.Pairs {
		dests[i] = p.Destination
	}
	if _, err := m.tracker.StartOperation(id, dests, plan.Sizes); err != nil {
		logger.Get().Warn().Err(err).Msgf("进度跟踪初始化失败: %s", id)
	}

	resolverOpts := append([]conflict.Option{}, m.opts.ResolverOptions...)
	resolverOpts = append(resolverOpts,
		conflict.WithDefaultAction(opts.ConflictAction),
		conflict.WithDecider(m.decider),
	)
	resolver := conflict.NewResolver(m.fs, resolverOpts...)
	if opts.ApplyToAll {
		resolver.ApplyToAll(opts.ConflictAction)
	}

	cb := func(u copier.Update) {
		if u.Reset {
			m.tracker.ResetFile(id, u.Pair.Destination)
			return
		}
		m.tracker.UpdateFile(id, u.Pair.Destination, u.Copied)
	}

	var fatal error
	switch op.Type {
	case internal.OpCopy:
		fatal = m.runCopy(e, plan, resolver, cb)
	case internal.OpMove:
		fatal = m.runMove(e, plan, resolver, cb)
	case internal.OpVerify:
		m.runVerify(e, plan)
	default:
		m.abort(e, fmt.Errorf("%w: unsupported operation type %q", internal.ErrInvalidInput, op.Type))
		return
	}

	m.mu.Lock()
	op.NotAttempted = op.TotalFiles - op.ProcessedFiles
	status := internal.StatusCompleted
	switch {
	case e.token.Cancelled() && op.NotAttempted > 0:
		status = internal.StatusCancelled
		op.ErrorSummary = fmt.Sprintf("cancelled, %d of %d files not attempted", op.NotAttempted, op.TotalFiles)
	case fatal != nil:
		status = internal.StatusFailed
		op.ErrorSummary = fmt.Sprintf("stopped after fatal error (%v), %d files not attempted", fatal, op.NotAttempted)
	case op.FailedFiles > 0:
		status = internal.StatusFailed
		op.ErrorSummary = fmt.Sprintf("%d of %d files failed: %s", op.FailedFiles, op.TotalFiles, op.Errors[0].Message)
	}
	m.mu.Unlock()

	m.finish(e, status)
}

func (m *Manager) runCopy(e *entry, plan *scanner.Plan, resolver *conflict.Resolver, cb copier.ProgressFunc) error {
	opts := e.op.Options
	copierOpts := append([]copier.Option{}, m.opts.CopierOptions...)
	copierOpts = append(copierOpts, copier.WithFileDone(func(r copier.BatchResult) {
		m.record(e, r.Pair, r.Result.Skipped, r.Err)
	}))
	cp := copier.New(m.fs, resolver, m.verifier, copierOpts...)

	if err := cp.MirrorDirs(plan.Dirs); err != nil {
		return err
	}

	if m.opts.BatchConcurrency > 1 && len(plan.Pairs) > 1 {
		var fatal error
		for _, r := range cp.CopyBatch(e.ctx, e.token, plan.Pairs, opts, m.opts.BatchConcurrency, cb) {
			if fatal == nil && internal.IsFatal(r.Err) {
				fatal = r.Err
			}
		}
		return fatal
	}

	return m.sequential(e, plan.Pairs, func(p internal.PathPair) (bool, error) {
		r, err := cp.CopyWithRetry(e.ctx, e.token, p.Source, p.Destination, opts, cb)
		return r.Skipped, err
	})
}

// runMove 逐个移动，同一目录树内的文件按顺序处理，结束后清理空的源目录
func (m *Manager) runMove(e *entry, plan *scanner.Plan, resolver *conflict.Resolver, cb copier.ProgressFunc) error {
	opts := e.op.Options
	cp := copier.New(m.fs, resolver, m.verifier, m.opts.CopierOptions...)
	moverOpts := append([]mover.Option{}, m.opts.MoverOptions...)
	moverOpts = append(moverOpts,
		mover.WithResolver(resolver),
		mover.WithSampledVerifyThreshold(m.opts.SampledVerifyThreshold),
	)
	mv := mover.New(m.fs, cp, m.verifier, moverOpts...)

	if err := cp.MirrorDirs(plan.Dirs); err != nil {
		return err
	}

	fatal := m.sequential(e, plan.Pairs, func(p internal.PathPair) (bool, error) {
		r, err := mv.Move(e.ctx, e.token, p.Source, p.Destination, opts, cb)
		return r.Skipped, err
	})

	if n := mv.RemoveEmptyDirs(plan.Dirs); n > 0 {
		logger.Get().Debug().Msgf("已删除 %d 个空的源目录", n)
	}
	return fatal
}

func (m *Manager) runVerify(e *entry, plan *scanner.Plan) {
	algo := e.op.Options.Algorithm
	ctx := verifier.WithCheckpoint(e.ctx, e.token)
	stopped := func(r internal.VerificationResult) bool {
		return !r.Match && (ctx.Err() != nil || e.token.Cancelled())
	}

	if m.opts.BatchConcurrency > 1 && len(plan.Pairs) > 1 {
		err := m.verifier.ForEach(ctx, plan.Pairs, algo, m.opts.BatchConcurrency, func(r internal.VerificationResult) {
			if stopped(r) {
				return
			}
			m.record(e, internal.PathPair{Source: r.Source, Destination: r.Destination}, false, verificationError(r))
		})
		if err != nil {
			logger.Get().Error().Err(err).Msg("批量校验失败")
		}
		return
	}

	m.sequential(e, plan.Pairs, func(p internal.PathPair) (bool, error) {
		r := m.verifier.Verify(ctx, p.Source, p.Destination, algo, false)
		if stopped(r) {
			return false, internal.ErrCancelled
		}
		return false, verificationError(r)
	})
}

// sequential 按提交顺序执行；每个文件开始前检查暂停/取消，遇到致命错误停止
func (m *Manager) sequential(e *entry, pairs []internal.PathPair, fn func(internal.PathPair) (bool, error)) error {
	for _, p := range pairs {
		if _, err := e.token.Wait(e.ctx); err != nil {
			return nil
		}

		skipped, err := fn(p)
		m.record(e, p, skipped, err)

		if internal.IsFatal(err) {
			logger.Get().Error().Err(err).Msgf("致命错误，停止剩余文件: %s", e.op.ID)
			return err
		}
		if internal.Classify(err) == internal.KindCancelled {
			return nil
		}
	}
	return nil
}

// record 记录单个文件的结果；被取消的文件不计入，按未尝试处理
func (m *Manager) record(e *entry, pair internal.PathPair, skipped bool, err error) {
	if internal.Classify(err) == internal.KindCancelled {
		return
	}

	m.mu.Lock()
	e.op.ProcessedFiles++
	switch {
	case err != nil:
		e.op.FailedFiles++
		e.op.Errors = append(e.op.Errors, internal.FileError{
			Source:      pair.Source,
			Destination: pair.Destination,
			Kind:        internal.Classify(err),
			Message:     err.Error(),
		})
	case skipped:
		e.op.SkippedFiles++
	}
	m.mu.Unlock()

	if err != nil {
		logger.Get().Error().Err(err).Msgf("文件处理失败: %s", pair.Source)
	}
	m.tracker.CompleteFile(e.op.ID, pair.Destination, err)
}

// abort 展开或准备阶段失败，所有文件记为未尝试
func (m *Manager) abort(e *entry, err error) {
	logger.Get().Error().Err(err).Msgf("操作无法执行: %s", e.op.ID)

	m.mu.Lock()
	e.op.NotAttempted = e.op.TotalFiles - e.op.ProcessedFiles
	e.op.Errors = append(e.op.Errors, internal.FileError{
		Kind:    internal.Classify(err),
		Message: err.Error(),
	})
	e.op.ErrorSummary = err.Error()
	m.mu.Unlock()

	m.finish(e, internal.StatusFailed)
}

func verificationError(r internal.VerificationResult) error {
	if r.Match {
		return nil
	}
	if (r.SourceDigest != "" && r.DestDigest != "") || strings.HasPrefix(r.Error, "size mismatch") {
		return &internal.TransferError{
			Op:   "verify",
			Path: r.Destination,
			Kind: internal.KindVerification,
			Err:  internal.ErrVerificationFailed,
		}
	}
	return internal.NewError("verify", r.Destination, errors.New(r.Error))
}
