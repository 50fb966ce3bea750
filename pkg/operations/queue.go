package operations

import (
	"context"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/copier"
)

// entry 注册表中的一个操作
type entry struct {
	op     *internal.FileOperation
	token  *copier.Token
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	// index 在堆中的位置，出队后为 -1
	index int
}

// opQueue 按优先级降序、序号升序出队，实现 container/heap 接口
type opQueue []*entry

func (q opQueue) Len() int { return len(q) }

func (q opQueue) Less(i, j int) bool {
	if q[i].op.Priority != q[j].op.Priority {
		return q[i].op.Priority > q[j].op.Priority
	}
	return q[i].op.Seq < q[j].op.Seq
}

func (q opQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *opQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *opQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
