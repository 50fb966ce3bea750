// Package operations schedules FileOperations on a fixed worker pool and
// exposes the enqueue, control and query API used by the CLI, the HTTP
// adapter and the TUI.
package operations

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/conflict"
	"github.com/moyu-x/file-transfer/pkg/copier"
	"github.com/moyu-x/file-transfer/pkg/database"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/mover"
	"github.com/moyu-x/file-transfer/pkg/progress"
	"github.com/moyu-x/file-transfer/pkg/verifier"
)

// Options 引擎参数，通常由 config.Config.EngineOptions 生成
type Options struct {
	MaxConcurrentOperations int
	BatchConcurrency        int
	HistoryEnabled          bool
	CopierOptions           []copier.Option
	MoverOptions            []mover.Option
	ResolverOptions         []conflict.Option
	SampledVerifyThreshold  int64
}

func DefaultOptions() Options {
	return Options{
		MaxConcurrentOperations: internal.DefaultMaxConcurrentOperations,
		BatchConcurrency:        internal.DefaultBatchConcurrency,
		HistoryEnabled:          true,
		SampledVerifyThreshold:  internal.DefaultSampledVerifyThreshold,
	}
}

type Dependency func(*Manager)

func WithFs(fs afero.Fs) Dependency {
	return func(m *Manager) { m.fs = fs }
}

func WithTracker(t *progress.Tracker) Dependency {
	return func(m *Manager) { m.tracker = t }
}

func WithVerifier(v *verifier.Verifier) Dependency {
	return func(m *Manager) { m.verifier = v }
}

func WithHistory(s database.Store) Dependency {
	return func(m *Manager) { m.history = s }
}

// WithDecider Ask 冲突时调用，未设置时 Ask 按 Skip 处理
func WithDecider(d internal.ConflictDecider) Dependency {
	return func(m *Manager) { m.decider = d }
}

func WithClock(now func() time.Time) Dependency {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	opts     Options
	fs       afero.Fs
	tracker  *progress.Tracker
	verifier *verifier.Verifier
	history  database.Store
	decider  internal.ConflictDecider
	now      func() time.Time

	// mu 保护 queue、ops、seq 以及所有 FileOperation 字段
	mu      sync.Mutex
	cond    *sync.Cond
	queue   opQueue
	ops     map[string]*entry
	seq     uint64
	started bool
	stopped bool

	pool        *ants.Pool
	wg          sync.WaitGroup
	unobserve   func()
	rootCtx     context.Context
	cancelRoots context.CancelFunc

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func NewManager(opts Options, deps ...Dependency) (*Manager, error) {
	if opts.MaxConcurrentOperations <= 0 {
		opts.MaxConcurrentOperations = internal.DefaultMaxConcurrentOperations
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 1
	}

	m := &Manager{
		opts: opts,
		ops:  make(map[string]*entry),
		subs: make(map[int]chan Event),
		now:  time.Now,
	}
	for _, dep := range deps {
		dep(m)
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.tracker == nil {
		m.tracker = progress.NewTracker()
	}
	if m.verifier == nil {
		m.verifier = verifier.New(m.fs)
	}
	m.cond = sync.NewCond(&m.mu)
	m.rootCtx, m.cancelRoots = context.WithCancel(context.Background())

	m.unobserve = m.tracker.Observe(func(u internal.ProgressUpdate) {
		m.publish(Event{Type: EventProgress, OperationID: u.OperationID, Progress: &u})
	})

	pool, err := ants.NewPool(opts.MaxConcurrentOperations)
	if err != nil {
		return nil, fmt.Errorf("创建工作线程池失败: %w", err)
	}
	m.pool = pool

	logger.Get().Info().Msgf("创建操作管理器，并发操作数: %d，批量并发数: %d", opts.MaxConcurrentOperations, opts.BatchConcurrency)
	return m, nil
}

// Start 启动固定数量的工作协程
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.opts.MaxConcurrentOperations; i++ {
		m.wg.Add(1)
		if err := m.pool.Submit(m.worker); err != nil {
			m.wg.Done()
			return fmt.Errorf("启动工作线程失败: %w", err)
		}
	}
	logger.Get().Info().Msgf("操作管理器已启动，%d 个工作线程", m.opts.MaxConcurrentOperations)
	return nil
}

// Stop 取消所有未结束的操作并等待工作协程退出
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true

	var queued []*entry
	for m.queue.Len() > 0 {
		queued = append(queued, heap.Pop(&m.queue).(*entry))
	}
	for _, e := range m.ops {
		if !e.op.Status.IsTerminal() {
			e.token.Cancel()
		}
	}
	m.cond.Broadcast()
	m.mu.Unlock()

	for _, e := range queued {
		m.cancelQueued(e)
	}

	m.wg.Wait()
	m.cancelRoots()
	m.pool.Release()
	m.unobserve()
	logger.Get().Info().Msg("操作管理器已停止")
}

func (m *Manager) QueueCopy(sources, dests []string, priority internal.Priority, opts internal.OperationOptions) (string, error) {
	return m.enqueue(internal.OpCopy, sources, dests, priority, opts)
}

func (m *Manager) QueueMove(sources, dests []string, priority internal.Priority, opts internal.OperationOptions) (string, error) {
	return m.enqueue(internal.OpMove, sources, dests, priority, opts)
}

func (m *Manager) QueueVerify(sources, dests []string, priority internal.Priority, opts internal.OperationOptions) (string, error) {
	return m.enqueue(internal.OpVerify, sources, dests, priority, opts)
}

func (m *Manager) enqueue(typ internal.OperationType, sources, dests []string, priority internal.Priority, opts internal.OperationOptions) (string, error) {
	if len(sources) == 0 {
		return "", fmt.Errorf("%w: no source paths", internal.ErrInvalidInput)
	}
	if len(sources) != len(dests) {
		return "", fmt.Errorf("%w: %d sources but %d destinations", internal.ErrInvalidInput, len(sources), len(dests))
	}

	pairs := make([]internal.PathPair, len(sources))
	for i := range sources {
		if sources[i] == "" || dests[i] == "" {
			return "", fmt.Errorf("%w: empty path at index %d", internal.ErrInvalidInput, i)
		}
		pairs[i] = internal.PathPair{Source: sources[i], Destination: dests[i]}
	}
	if opts.ConflictAction == "" {
		opts.ConflictAction = internal.ConflictAsk
	}
	if opts.Algorithm == "" {
		opts.Algorithm = internal.DefaultHashAlgorithm
	}

	ctx, cancel := context.WithCancel(m.rootCtx)
	e := &entry{
		op: &internal.FileOperation{
			ID:         uuid.NewString(),
			Type:       typ,
			Priority:   priority,
			Pairs:      pairs,
			Options:    opts,
			Status:     internal.StatusQueued,
			TotalFiles: len(pairs),
			CreatedAt:  m.now(),
		},
		token:  copier.NewToken(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		cancel()
		return "", fmt.Errorf("操作管理器已停止")
	}
	m.seq++
	e.op.Seq = m.seq
	heap.Push(&m.queue, e)
	m.ops[e.op.ID] = e
	m.cond.Signal()
	m.mu.Unlock()

	logger.Get().Info().Msgf("操作已入队: %s (%s, 优先级 %s, %d 个路径)", e.op.ID, typ, priority, len(pairs))
	m.publish(Event{Type: EventQueued, OperationID: e.op.ID, Status: internal.StatusQueued})
	return e.op.ID, nil
}

// PauseOperation 只有执行中的操作可以暂停
func (m *Manager) PauseOperation(id string) bool {
	m.mu.Lock()
	e, ok := m.ops[id]
	if !ok || e.op.Status != internal.StatusInProgress {
		m.mu.Unlock()
		return false
	}
	e.op.Status = internal.StatusPaused
	e.token.Pause()
	m.mu.Unlock()

	m.tracker.Pause(id)
	logger.Get().Info().Msgf("操作已暂停: %s", id)
	m.publish(Event{Type: EventPaused, OperationID: id, Status: internal.StatusPaused})
	return true
}

func (m *Manager) ResumeOperation(id string) bool {
	m.mu.Lock()
	e, ok := m.ops[id]
	if !ok || e.op.Status != internal.StatusPaused {
		m.mu.Unlock()
		return false
	}
	e.op.Status = internal.StatusInProgress
	e.token.Resume()
	m.mu.Unlock()

	m.tracker.Resume(id)
	logger.Get().Info().Msgf("操作已恢复: %s", id)
	m.publish(Event{Type: EventResumed, OperationID: id, Status: internal.StatusInProgress})
	return true
}

// CancelOperation 排队中的操作直接结束，执行中的操作在下一个块边界停止
func (m *Manager) CancelOperation(id string) bool {
	m.mu.Lock()
	e, ok := m.ops[id]
	if !ok || e.op.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	if e.op.Status == internal.StatusQueued {
		if e.index >= 0 {
			heap.Remove(&m.queue, e.index)
		}
		m.mu.Unlock()
		m.cancelQueued(e)
		return true
	}
	e.token.Cancel()
	m.mu.Unlock()

	logger.Get().Info().Msgf("已请求取消操作: %s", id)
	return true
}

func (m *Manager) cancelQueued(e *entry) {
	m.mu.Lock()
	e.op.NotAttempted = e.op.TotalFiles
	e.op.ErrorSummary = fmt.Sprintf("cancelled before start, %d not attempted", e.op.TotalFiles)
	m.mu.Unlock()
	e.token.Cancel()
	m.finish(e, internal.StatusCancelled)
}

func (m *Manager) GetOperation(id string) (*internal.FileOperation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ops[id]
	if !ok {
		return nil, false
	}
	return e.op.Snapshot(), true
}

func (m *Manager) GetProgress(id string) (*internal.OperationProgress, bool) {
	return m.tracker.Get(id)
}

// GetAllOperations 按入队顺序返回快照
func (m *Manager) GetAllOperations() []*internal.FileOperation {
	m.mu.Lock()
	ops := make([]*internal.FileOperation, 0, len(m.ops))
	for _, e := range m.ops {
		ops = append(ops, e.op.Snapshot())
	}
	m.mu.Unlock()

	sort.Slice(ops, func(i, j int) bool { return ops[i].Seq < ops[j].Seq })
	return ops
}

// ClearCompleted 从内存中移除终态操作，历史记录不受影响
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	var removed []string
	for id, e := range m.ops {
		if e.op.Status.IsTerminal() {
			delete(m.ops, id)
			removed = append(removed, id)
		}
	}
	m.mu.Unlock()

	for _, id := range removed {
		m.tracker.Remove(id)
	}
	return len(removed)
}

func (m *Manager) History() ([]internal.HistoryRecord, error) {
	if m.history == nil {
		return nil, nil
	}
	return m.history.Load()
}

// Wait 阻塞直到操作进入终态
func (m *Manager) Wait(ctx context.Context, id string) (*internal.FileOperation, error) {
	m.mu.Lock()
	e, ok := m.ops[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", internal.ErrOperationNotFound, id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return e.op.Snapshot(), nil
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		for !m.stopped && m.queue.Len() == 0 {
			m.cond.Wait()
		}
		if m.stopped {
			m.mu.Unlock()
			return
		}
		e := heap.Pop(&m.queue).(*entry)
		e.op.Status = internal.StatusInProgress
		e.op.StartedAt = m.now()
		m.mu.Unlock()

		logger.Get().Info().Msgf("开始执行操作: %s (%s)", e.op.ID, e.op.Type)
		m.publish(Event{Type: EventStarted, OperationID: e.op.ID, Status: internal.StatusInProgress})
		m.execute(e)
	}
}

// finish 进入终态：写历史记录、发布事件、唤醒 Wait。
// 暂停中的操作只能恢复或取消，因此这里先等到恢复；暂停期间被取消则记为 cancelled。
func (m *Manager) finish(e *entry, status internal.OperationStatus) {
	if status != internal.StatusCancelled {
		e.token.Wait(e.ctx)
	}

	m.mu.Lock()
	if e.op.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	if e.op.Status == internal.StatusPaused {
		status = internal.StatusCancelled
		if e.op.ErrorSummary == "" {
			e.op.ErrorSummary = "cancelled while paused"
		}
	}
	e.op.Status = status
	e.op.CompletedAt = m.now()
	rec := e.op.HistoryRecord()
	skipped := e.op.SkippedFiles
	m.mu.Unlock()

	e.cancel()

	if m.opts.HistoryEnabled && m.history != nil {
		if err := m.history.Append(rec); err != nil {
			logger.Get().Error().Err(err).Msgf("写入历史记录失败: %s", rec.ID)
		}
	}

	logger.Get().Info().Msgf("操作结束: %s -> %s (成功 %d，失败 %d，跳过 %d，总计 %d)",
		rec.ID, status, rec.ProcessedFiles-rec.FailedFiles-skipped, rec.FailedFiles, skipped, rec.TotalFiles)
	m.publish(Event{Type: terminalEvent(status), OperationID: rec.ID, Status: status})
	close(e.done)
}
