package copier

import (
	"context"
	"sync"
	"time"

	"github.com/moyu-x/file-transfer/internal"
)

// Token 复制循环与控制方共享的暂停/取消标志，只在块边界生效。
// nil Token 永远不会暂停或取消。
type Token struct {
	mu        sync.Mutex
	cond      *sync.Cond
	paused    bool
	cancelled bool
	done      chan struct{}
}

func NewToken() *Token {
	t := &Token{done: make(chan struct{})}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Cancel 幂等
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	close(t.done)
	t.cond.Broadcast()
}

// Pause 返回状态是否发生变化
func (t *Token) Pause() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused || t.cancelled {
		return false
	}
	t.paused = true
	return true
}

func (t *Token) Resume() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		return false
	}
	t.paused = false
	t.cond.Broadcast()
	return true
}

func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Token) Paused() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Done 在 Cancel 后关闭
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}

// Wait 是复制循环的检查点：暂停时阻塞直到恢复，返回阻塞时长。
// 已取消或 ctx 结束时返回 ErrCancelled。
func (t *Token) Wait(ctx context.Context) (time.Duration, error) {
	if t == nil {
		if ctx.Err() != nil {
			return 0, internal.ErrCancelled
		}
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var paused time.Duration
	if t.paused && !t.cancelled && ctx.Err() == nil {
		start := time.Now()
		stop := context.AfterFunc(ctx, func() {
			t.mu.Lock()
			t.cond.Broadcast()
			t.mu.Unlock()
		})
		for t.paused && !t.cancelled && ctx.Err() == nil {
			t.cond.Wait()
		}
		stop()
		paused = time.Since(start)
	}

	if t.cancelled || ctx.Err() != nil {
		return paused, internal.ErrCancelled
	}
	return paused, nil
}
