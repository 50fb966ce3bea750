package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/config"
	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/scanner"
	"github.com/moyu-x/file-transfer/pkg/verifier"
)

type VerifyOptions struct {
	Source      string
	Destination string
	Algorithm   internal.HashAlgorithm
	Sampled     bool
}

// RunVerify 比较源与目标，目录按相对路径逐个文件比较，结果按遍历顺序返回
func RunVerify(ctx context.Context, fs afero.Fs, cfg *config.Config, opts *VerifyOptions) ([]internal.VerificationResult, error) {
	plan, err := scanner.NewFileWalker(fs).Expand([]internal.PathPair{{Source: opts.Source, Destination: opts.Destination}})
	if err != nil {
		return nil, err
	}

	v := verifier.New(fs, cfg.VerifierOptions()...)
	logger.Get().Info().Msgf("校验 %d 个文件 (%s, 抽样: %v)", len(plan.Pairs), opts.Algorithm, opts.Sampled)

	results := make([]internal.VerificationResult, 0, len(plan.Pairs))
	if opts.Sampled {
		for _, p := range plan.Pairs {
			if err := ctx.Err(); err != nil {
				return results, internal.ErrCancelled
			}
			results = append(results, v.Verify(ctx, p.Source, p.Destination, opts.Algorithm, true))
		}
		return results, nil
	}

	byDest, err := v.VerifyBatch(ctx, plan.Pairs, opts.Algorithm, cfg.Engine.BatchConcurrency)
	if err != nil {
		return nil, err
	}
	for _, p := range plan.Pairs {
		results = append(results, byDest[p.Destination])
	}
	return results, nil
}

// ExpandFiles 把目录展开成其中的文件，普通文件原样保留
func ExpandFiles(fs afero.Fs, paths []string) ([]string, error) {
	walker := scanner.NewFileWalker(fs)
	var files []string
	for _, path := range paths {
		info, err := fs.Stat(path)
		if err != nil {
			return nil, internal.NewError("scan", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = walker.Walk(path, func(p string, _ os.FileInfo) error {
			files = append(files, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("遍历目录失败: %w", err)
		}
	}
	return files, nil
}
