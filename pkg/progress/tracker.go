// Package progress 跟踪每个操作内每个文件的传输进度、滚动速度与剩余时间。
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

// Observer 每次进度变化后被调用，供界面层渲染进度条
type Observer func(update internal.ProgressUpdate)

type Tracker struct {
	mu  sync.RWMutex // 仅保护 ops 映射本身
	ops map[string]*operation

	observersMu sync.RWMutex
	observers   map[int]Observer
	nextObs     int

	now func() time.Time
}

// operation 每个操作独立加锁，不同操作之间互不竞争
type operation struct {
	mu       sync.Mutex
	id       string
	files    map[string]*internal.FileProgress
	order    []string
	total    int64
	copied   int64
	done     int
	failed   int
	percent  float64
	start    time.Time
	pausedAt time.Time
	paused   time.Duration

	samples       []float64
	sampleActive  time.Duration
	sampleBytes   int64
	sampleStarted bool
}

func NewTracker() *Tracker {
	return &Tracker{
		ops:       make(map[string]*operation),
		observers: make(map[int]Observer),
		now:       time.Now,
	}
}

// SetClock 替换时间来源，用于测试速度与 ETA
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

func (t *Tracker) clock() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.now()
}

// StartOperation 为每个文件初始化进度
func (t *Tracker) StartOperation(id string, files []string, sizes []int64) (*internal.OperationProgress, error) {
	if len(files) != len(sizes) {
		return nil, fmt.Errorf("%w: %d files but %d sizes", internal.ErrInvalidInput, len(files), len(sizes))
	}

	now := t.clock()
	op := &operation{
		id:    id,
		files: make(map[string]*internal.FileProgress, len(files)),
		order: make([]string, 0, len(files)),
		start: now,
	}
	for i, f := range files {
		if _, dup := op.files[f]; dup {
			op.files[f].BytesTotal += sizes[i]
			op.total += sizes[i]
			continue
		}
		op.files[f] = &internal.FileProgress{Path: f, BytesTotal: sizes[i]}
		op.order = append(op.order, f)
		op.total += sizes[i]
	}

	t.mu.Lock()
	if _, exists := t.ops[id]; exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", internal.ErrDuplicateOperation, id)
	}
	t.ops[id] = op
	t.mu.Unlock()

	logger.Get().Debug().Str("operation", id).Int("files", len(op.order)).Int64("bytes", op.total).Msg("开始跟踪进度")

	op.mu.Lock()
	defer op.mu.Unlock()
	return op.snapshot(now), nil
}

func (t *Tracker) lookup(id string) (*operation, error) {
	t.mu.RLock()
	op, ok := t.ops[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", internal.ErrOperationNotFound, id)
	}
	return op, nil
}

// UpdateFile 单调更新已复制字节数，较小或相同的值被忽略
func (t *Tracker) UpdateFile(id, file string, bytesCopied int64) error {
	op, err := t.lookup(id)
	if err != nil {
		return err
	}
	now := t.clock()

	op.mu.Lock()
	fp, ok := op.files[file]
	if !ok || fp.Done || bytesCopied <= fp.BytesCopied {
		op.mu.Unlock()
		return nil
	}
	if fp.StartTime.IsZero() {
		fp.StartTime = now
	}
	if bytesCopied > fp.BytesTotal {
		op.total += bytesCopied - fp.BytesTotal
		fp.BytesTotal = bytesCopied
	}
	op.copied += bytesCopied - fp.BytesCopied
	fp.BytesCopied = bytesCopied
	op.sample(now)
	op.recompute()
	update := internal.ProgressUpdate{OperationID: id, File: file, BytesCopied: fp.BytesCopied, BytesTotal: fp.BytesTotal}
	op.mu.Unlock()

	t.notify(update)
	return nil
}

// ResetFile 文件从头重试时清零，这是百分比唯一允许下降的情况
func (t *Tracker) ResetFile(id, file string) error {
	op, err := t.lookup(id)
	if err != nil {
		return err
	}

	op.mu.Lock()
	fp, ok := op.files[file]
	if !ok || fp.Done || fp.BytesCopied == 0 {
		op.mu.Unlock()
		return nil
	}
	op.copied -= fp.BytesCopied
	fp.BytesCopied = 0
	op.percent = op.rawPercent()
	update := internal.ProgressUpdate{OperationID: id, File: file, BytesTotal: fp.BytesTotal}
	op.mu.Unlock()

	logger.Get().Debug().Str("operation", id).Str("file", file).Msg("文件进度已重置")
	t.notify(update)
	return nil
}

// CompleteFile 标记文件结束；fileErr 不为空时计入失败数
func (t *Tracker) CompleteFile(id, file string, fileErr error) error {
	op, err := t.lookup(id)
	if err != nil {
		return err
	}
	now := t.clock()

	op.mu.Lock()
	fp, ok := op.files[file]
	if !ok || fp.Done {
		op.mu.Unlock()
		return nil
	}
	fp.Done = true
	fp.EndTime = now
	if fp.StartTime.IsZero() {
		fp.StartTime = now
	}
	if fileErr != nil {
		fp.Error = fileErr.Error()
		op.failed++
	} else {
		op.done++
	}
	// 失败或跳过的文件同样视为已处理完的字节，保证整体能到 100%
	if fp.BytesCopied < fp.BytesTotal {
		op.copied += fp.BytesTotal - fp.BytesCopied
		fp.BytesCopied = fp.BytesTotal
	}
	op.sample(now)
	op.recompute()
	update := internal.ProgressUpdate{OperationID: id, File: file, BytesCopied: fp.BytesCopied, BytesTotal: fp.BytesTotal, Done: true}
	op.mu.Unlock()

	t.notify(update)
	return nil
}

// Pause 记录暂停时刻，暂停时间不计入速度
func (t *Tracker) Pause(id string) error {
	op, err := t.lookup(id)
	if err != nil {
		return err
	}
	now := t.clock()

	op.mu.Lock()
	defer op.mu.Unlock()
	if op.pausedAt.IsZero() {
		op.pausedAt = now
	}
	return nil
}

func (t *Tracker) Resume(id string) error {
	op, err := t.lookup(id)
	if err != nil {
		return err
	}
	now := t.clock()

	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.pausedAt.IsZero() {
		op.paused += now.Sub(op.pausedAt)
		op.pausedAt = time.Time{}
	}
	return nil
}

// Get 返回进度快照
func (t *Tracker) Get(id string) (*internal.OperationProgress, bool) {
	op, err := t.lookup(id)
	if err != nil {
		return nil, false
	}
	now := t.clock()

	op.mu.Lock()
	defer op.mu.Unlock()
	return op.snapshot(now), true
}

// Remove 停止跟踪操作
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	delete(t.ops, id)
	t.mu.Unlock()
}

// Observe 注册观察者，返回取消函数
func (t *Tracker) Observe(fn Observer) func() {
	t.observersMu.Lock()
	key := t.nextObs
	t.nextObs++
	t.observers[key] = fn
	t.observersMu.Unlock()

	return func() {
		t.observersMu.Lock()
		delete(t.observers, key)
		t.observersMu.Unlock()
	}
}

func (t *Tracker) notify(update internal.ProgressUpdate) {
	t.observersMu.RLock()
	observers := make([]Observer, 0, len(t.observers))
	for _, fn := range t.observers {
		observers = append(observers, fn)
	}
	t.observersMu.RUnlock()

	for _, fn := range observers {
		fn(update)
	}
}

// active 扣除暂停时间后的有效耗时
func (op *operation) active(now time.Time) time.Duration {
	paused := op.paused
	if !op.pausedAt.IsZero() {
		paused += now.Sub(op.pausedAt)
	}
	d := now.Sub(op.start) - paused
	if d < 0 {
		return 0
	}
	return d
}

// sample 固定间隔采样吞吐量，保留最近 SpeedSampleWindow 个
func (op *operation) sample(now time.Time) {
	active := op.active(now)
	if !op.sampleStarted {
		op.sampleStarted = true
		op.sampleActive = 0
		op.sampleBytes = 0
	}

	elapsed := active - op.sampleActive
	if elapsed < internal.SpeedSampleInterval {
		return
	}

	speed := float64(op.copied-op.sampleBytes) / elapsed.Seconds()
	if speed < 0 {
		speed = 0
	}
	op.samples = append(op.samples, speed)
	if len(op.samples) > internal.SpeedSampleWindow {
		op.samples = op.samples[len(op.samples)-internal.SpeedSampleWindow:]
	}
	op.sampleActive = active
	op.sampleBytes = op.copied
}

func (op *operation) speed() float64 {
	if len(op.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range op.samples {
		sum += s
	}
	return sum / float64(len(op.samples))
}

func (op *operation) rawPercent() float64 {
	if op.total > 0 {
		p := float64(op.copied) / float64(op.total) * 100
		if p > 100 {
			p = 100
		}
		return p
	}
	if len(op.order) == 0 {
		return 100
	}
	return float64(op.done+op.failed) / float64(len(op.order)) * 100
}

func (op *operation) recompute() {
	if p := op.rawPercent(); p > op.percent {
		op.percent = p
	}
}

func (op *operation) snapshot(now time.Time) *internal.OperationProgress {
	files := make(map[string]*internal.FileProgress, len(op.files))
	for k, v := range op.files {
		cp := *v
		files[k] = &cp
	}

	paused := op.paused
	if !op.pausedAt.IsZero() {
		paused += now.Sub(op.pausedAt)
	}

	speed := op.speed()
	eta := time.Duration(-1)
	if remaining := op.total - op.copied; speed > 0 {
		eta = time.Duration(float64(remaining) / speed * float64(time.Second))
	}

	percent := op.percent
	if len(op.order) == 0 {
		percent = 100
	}

	return &internal.OperationProgress{
		ID:              op.id,
		Files:           files,
		Order:           append([]string(nil), op.order...),
		TotalBytes:      op.total,
		CopiedBytes:     op.copied,
		CompletedFiles:  op.done,
		FailedFiles:     op.failed,
		StartTime:       op.start,
		PausedDuration:  paused,
		ProgressPercent: percent,
		Speed:           speed,
		ETA:             eta,
	}
}
