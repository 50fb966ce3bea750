// Package verifier computes and compares file digests.
//
// Verification protects against accidental corruption during transfer,
// not against deliberate tampering, so the algorithm is a speed/strength
// trade-off chosen by configuration. Sampled verification is an explicit
// opt-in that hashes only a bounded set of byte ranges and is therefore
// weaker than a full comparison.
package verifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

type Verifier struct {
	fs          afero.Fs
	sampleCount int
	sampleSize  int
}

type Option func(*Verifier)

// WithSampling sets the number and size of ranges used by sampled hashing.
func WithSampling(count, size int) Option {
	return func(v *Verifier) {
		if count > 0 {
			v.sampleCount = count
		}
		if size > 0 {
			v.sampleSize = size
		}
	}
}

func New(fs afero.Fs, opts ...Option) *Verifier {
	v := &Verifier{
		fs:          fs,
		sampleCount: internal.DefaultSampleCount,
		sampleSize:  internal.DefaultSampleSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify compares sizes first and only hashes both files when they match.
func (v *Verifier) Verify(ctx context.Context, src, dst string, algo internal.HashAlgorithm, sampled bool) internal.VerificationResult {
	if algo == "" {
		algo = internal.DefaultHashAlgorithm
	}
	result := internal.VerificationResult{
		Source:      src,
		Destination: dst,
		Algorithm:   algo,
		Sampled:     sampled,
	}

	srcInfo, err := v.fs.Stat(src)
	if err != nil {
		result.Error = fmt.Sprintf("stat source: %v", err)
		return result
	}
	dstInfo, err := v.fs.Stat(dst)
	if err != nil {
		result.Error = fmt.Sprintf("stat destination: %v", err)
		return result
	}
	if srcInfo.Size() != dstInfo.Size() {
		result.Error = fmt.Sprintf("size mismatch: %d != %d", srcInfo.Size(), dstInfo.Size())
		logger.Get().Debug().Str("source", src).Str("destination", dst).Msg("文件大小不一致，跳过哈希计算")
		return result
	}

	hashFn := v.Hash
	if sampled {
		hashFn = v.HashSampled
	}

	if result.SourceDigest, err = hashFn(ctx, src, algo); err != nil {
		result.Error = err.Error()
		return result
	}
	if result.DestDigest, err = hashFn(ctx, dst, algo); err != nil {
		result.Error = err.Error()
		return result
	}

	result.Match = result.SourceDigest == result.DestDigest
	if !result.Match {
		result.Error = internal.ErrVerificationFailed.Error()
	}
	return result
}

// VerifyBatch verifies pairs on a bounded pool and returns results keyed by destination.
// A slow or failing file does not hold back the others.
func (v *Verifier) VerifyBatch(ctx context.Context, pairs []internal.PathPair, algo internal.HashAlgorithm, concurrency int) (map[string]internal.VerificationResult, error) {
	results := make(map[string]internal.VerificationResult, len(pairs))
	err := v.ForEach(ctx, pairs, algo, concurrency, func(r internal.VerificationResult) {
		results[r.Destination] = r
	})
	return results, err
}

// ForEach runs Verify for each pair on an ants pool and reports every result to fn.
// fn is called serially. Each task passes the ctx checkpoint before it starts.
func (v *Verifier) ForEach(ctx context.Context, pairs []internal.PathPair, algo internal.HashAlgorithm, concurrency int, fn func(internal.VerificationResult)) error {
	if concurrency <= 0 {
		concurrency = internal.DefaultBatchConcurrency
	}
	if concurrency > len(pairs) {
		concurrency = len(pairs)
	}
	if concurrency == 0 {
		return nil
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return fmt.Errorf("创建校验线程池失败: %w", err)
	}
	defer pool.Release()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, pair := range pairs {
		pair := pair
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			var r internal.VerificationResult
			if err := checkpoint(ctx); err != nil {
				r = internal.VerificationResult{
					Source:      pair.Source,
					Destination: pair.Destination,
					Algorithm:   algo,
					Error:       err.Error(),
				}
			} else {
				r = v.Verify(ctx, pair.Source, pair.Destination, algo, false)
			}
			mu.Lock()
			fn(r)
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			fn(internal.VerificationResult{
				Source:      pair.Source,
				Destination: pair.Destination,
				Algorithm:   algo,
				Error:       submitErr.Error(),
			})
			mu.Unlock()
		}
	}
	wg.Wait()

	return nil
}
