package progress

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/moyu-x/file-transfer/internal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tracker := NewTracker()
	tracker.SetClock(clock.Now)
	return tracker, clock
}

func TestStartOperation(t *testing.T) {
	tracker, _ := newTestTracker()

	p, err := tracker.StartOperation("op1", []string{"a", "b"}, []int64{100, 300})
	if err != nil {
		t.Fatalf("StartOperation() error = %v", err)
	}
	if len(p.Files) != 2 {
		t.Errorf("Expected 2 files, got %d", len(p.Files))
	}
	if p.TotalBytes != 400 {
		t.Errorf("Expected 400 total bytes, got %d", p.TotalBytes)
	}
	if p.ETA != -1 {
		t.Errorf("Expected unknown ETA, got %v", p.ETA)
	}
}

func TestStartOperation_Duplicate(t *testing.T) {
	tracker, _ := newTestTracker()

	if _, err := tracker.StartOperation("op1", []string{"a"}, []int64{1}); err != nil {
		t.Fatalf("StartOperation() error = %v", err)
	}
	_, err := tracker.StartOperation("op1", []string{"a"}, []int64{1})
	if !errors.Is(err, internal.ErrDuplicateOperation) {
		t.Errorf("Expected ErrDuplicateOperation, got %v", err)
	}
}

func TestStartOperation_LengthMismatch(t *testing.T) {
	tracker, _ := newTestTracker()

	_, err := tracker.StartOperation("op1", []string{"a", "b"}, []int64{1})
	if !errors.Is(err, internal.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateFile_Monotonic(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.StartOperation("op1", []string{"a"}, []int64{100})

	tracker.UpdateFile("op1", "a", 60)
	tracker.UpdateFile("op1", "a", 40)
	tracker.UpdateFile("op1", "a", 60)

	p, _ := tracker.Get("op1")
	if p.Files["a"].BytesCopied != 60 {
		t.Errorf("Expected 60 bytes copied, got %d", p.Files["a"].BytesCopied)
	}
	if p.ProgressPercent != 60 {
		t.Errorf("Expected 60%%, got %.2f", p.ProgressPercent)
	}
}

func TestUpdateFile_UnknownOperation(t *testing.T) {
	tracker, _ := newTestTracker()

	err := tracker.UpdateFile("missing", "a", 1)
	if !errors.Is(err, internal.ErrOperationNotFound) {
		t.Errorf("Expected ErrOperationNotFound, got %v", err)
	}
}

func TestCompleteFile(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.StartOperation("op1", []string{"a", "b", "c"}, []int64{10, 10, 10})

	tracker.UpdateFile("op1", "a", 10)
	tracker.CompleteFile("op1", "a", nil)
	tracker.CompleteFile("op1", "b", fmt.Errorf("boom"))
	// 重复完成被忽略
	tracker.CompleteFile("op1", "b", fmt.Errorf("boom"))

	p, _ := tracker.Get("op1")
	if p.CompletedFiles != 1 {
		t.Errorf("Expected 1 completed file, got %d", p.CompletedFiles)
	}
	if p.FailedFiles != 1 {
		t.Errorf("Expected 1 failed file, got %d", p.FailedFiles)
	}
	if p.Files["b"].Error != "boom" {
		t.Errorf("Expected error to be recorded, got %q", p.Files["b"].Error)
	}

	tracker.CompleteFile("op1", "c", nil)
	p, _ = tracker.Get("op1")
	if p.ProgressPercent != 100 {
		t.Errorf("Expected 100%%, got %.2f", p.ProgressPercent)
	}
}

func TestResetFile(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.StartOperation("op1", []string{"a"}, []int64{100})

	tracker.UpdateFile("op1", "a", 80)
	tracker.ResetFile("op1", "a")

	p, _ := tracker.Get("op1")
	if p.ProgressPercent != 0 {
		t.Errorf("Expected reset to 0%%, got %.2f", p.ProgressPercent)
	}

	tracker.UpdateFile("op1", "a", 50)
	p, _ = tracker.Get("op1")
	if p.ProgressPercent != 50 {
		t.Errorf("Expected 50%%, got %.2f", p.ProgressPercent)
	}
}

func TestSpeedAndETA(t *testing.T) {
	tracker, clock := newTestTracker()
	tracker.StartOperation("op1", []string{"a"}, []int64{1000})

	for i := 1; i <= 5; i++ {
		clock.Advance(time.Second)
		tracker.UpdateFile("op1", "a", int64(i*100))
	}

	p, _ := tracker.Get("op1")
	if p.Speed != 100 {
		t.Errorf("Expected speed 100 B/s, got %.2f", p.Speed)
	}
	if p.ETA != 5*time.Second {
		t.Errorf("Expected ETA 5s, got %v", p.ETA)
	}
}

func TestSpeedWindow(t *testing.T) {
	tracker, clock := newTestTracker()
	tracker.StartOperation("op1", []string{"a"}, []int64{1 << 30})

	var copied int64
	// 前 10 个样本 1000 B/s，之后 10 个样本 100 B/s，窗口只保留后者
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		copied += 1000
		tracker.UpdateFile("op1", "a", copied)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		copied += 100
		tracker.UpdateFile("op1", "a", copied)
	}

	p, _ := tracker.Get("op1")
	if p.Speed != 100 {
		t.Errorf("Expected rolling speed 100 B/s, got %.2f", p.Speed)
	}
}

func TestPauseExcludedFromSpeed(t *testing.T) {
	tracker, clock := newTestTracker()
	tracker.StartOperation("op1", []string{"a"}, []int64{1000})

	clock.Advance(time.Second)
	tracker.UpdateFile("op1", "a", 100)

	tracker.Pause("op1")
	clock.Advance(time.Minute)
	tracker.Resume("op1")

	clock.Advance(time.Second)
	tracker.UpdateFile("op1", "a", 200)

	p, _ := tracker.Get("op1")
	if p.Speed != 100 {
		t.Errorf("Expected speed 100 B/s ignoring pause, got %.2f", p.Speed)
	}
	if p.PausedDuration != time.Minute {
		t.Errorf("Expected 1m paused, got %v", p.PausedDuration)
	}
}

func TestObserve(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.StartOperation("op1", []string{"a"}, []int64{10})

	var updates []internal.ProgressUpdate
	cancel := tracker.Observe(func(u internal.ProgressUpdate) {
		updates = append(updates, u)
	})

	tracker.UpdateFile("op1", "a", 5)
	tracker.CompleteFile("op1", "a", nil)
	cancel()
	tracker.UpdateFile("op1", "a", 10)

	if len(updates) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(updates))
	}
	if !updates[1].Done {
		t.Error("Expected last update to be terminal")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	tracker := NewTracker()
	files := make([]string, 20)
	sizes := make([]int64, 20)
	for i := range files {
		files[i] = fmt.Sprintf("file%d", i)
		sizes[i] = 1000
	}
	tracker.StartOperation("op1", files, sizes)

	var wg sync.WaitGroup
	for _, f := range files {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()
			for b := int64(100); b <= 1000; b += 100 {
				tracker.UpdateFile("op1", f, b)
			}
			tracker.CompleteFile("op1", f, nil)
		}(f)
	}
	wg.Wait()

	p, _ := tracker.Get("op1")
	if p.CompletedFiles != 20 {
		t.Errorf("Expected 20 completed files, got %d", p.CompletedFiles)
	}
	if p.CopiedBytes != 20000 {
		t.Errorf("Expected 20000 bytes, got %d", p.CopiedBytes)
	}
}
