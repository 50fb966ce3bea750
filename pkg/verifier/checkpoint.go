package verifier

import (
	"context"
	"time"

	"github.com/moyu-x/file-transfer/internal"
)

// Checkpoint 暂停时阻塞直到恢复，取消时返回错误。copier.Token 满足该接口。
type Checkpoint interface {
	Wait(ctx context.Context) (time.Duration, error)
}

type checkpointKey struct{}

// WithCheckpoint 让该 ctx 下的哈希计算在每个块和每个抽样区间前经过 cp
func WithCheckpoint(ctx context.Context, cp Checkpoint) context.Context {
	if cp == nil {
		return ctx
	}
	return context.WithValue(ctx, checkpointKey{}, cp)
}

// checkpoint 没有注册 Checkpoint 时只检查 ctx
func checkpoint(ctx context.Context) error {
	if cp, ok := ctx.Value(checkpointKey{}).(Checkpoint); ok {
		if _, err := cp.Wait(ctx); err != nil {
			return internal.ErrCancelled
		}
		return nil
	}
	if ctx.Err() != nil {
		return internal.ErrCancelled
	}
	return nil
}
