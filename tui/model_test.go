package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/moyu-x/file-transfer/internal"
)

type fakeEngine struct {
	ops      map[string]*internal.FileOperation
	progress map[string]*internal.OperationProgress
	calls    []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		ops:      map[string]*internal.FileOperation{},
		progress: map[string]*internal.OperationProgress{},
	}
}

func (f *fakeEngine) add(id string, status internal.OperationStatus, percent float64) {
	f.ops[id] = &internal.FileOperation{ID: id, Type: internal.OpCopy, Status: status, TotalFiles: 2}
	f.progress[id] = &internal.OperationProgress{ID: id, ProgressPercent: percent, TotalBytes: 2048, CopiedBytes: int64(percent * 20.48), ETA: -1}
}

func (f *fakeEngine) GetOperation(id string) (*internal.FileOperation, bool) {
	op, ok := f.ops[id]
	return op, ok
}

func (f *fakeEngine) GetProgress(id string) (*internal.OperationProgress, bool) {
	p, ok := f.progress[id]
	return p, ok
}

func (f *fakeEngine) GetAllOperations() []*internal.FileOperation {
	ops := make([]*internal.FileOperation, 0, len(f.ops))
	for _, id := range []string{"a", "b", "c"} {
		if op, ok := f.ops[id]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}

func (f *fakeEngine) control(name, id string, from, to internal.OperationStatus) bool {
	f.calls = append(f.calls, name+":"+id)
	op, ok := f.ops[id]
	if !ok || op.Status != from {
		return false
	}
	op.Status = to
	return true
}

func (f *fakeEngine) PauseOperation(id string) bool {
	return f.control("pause", id, internal.StatusInProgress, internal.StatusPaused)
}

func (f *fakeEngine) ResumeOperation(id string) bool {
	return f.control("resume", id, internal.StatusPaused, internal.StatusInProgress)
}

func (f *fakeEngine) CancelOperation(id string) bool {
	return f.control("cancel", id, internal.StatusInProgress, internal.StatusCancelled)
}

func refresh(t *testing.T, m *model) tea.Cmd {
	t.Helper()
	msg := m.poll()()
	_, cmd := m.Update(msg)
	return cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModel_PollAndRender(t *testing.T) {
	engine := newFakeEngine()
	engine.add("op-one-123456", internal.StatusInProgress, 50)
	engine.add("op-two-123456", internal.StatusQueued, 0)

	m := newModel(engine, []string{"op-one-123456", "op-two-123456", "missing"})
	if cmd := refresh(t, m); isQuit(cmd) {
		t.Fatal("Expected polling to continue while operations are running")
	}

	if len(m.rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(m.rows))
	}
	view := m.View()
	if !strings.Contains(view, "op-one-1") || !strings.Contains(view, "in_progress") {
		t.Errorf("Expected view to list the running operation, got:\n%s", view)
	}
	if !strings.Contains(view, "1.0 KB / 2.0 KB") {
		t.Errorf("Expected byte counters in view, got:\n%s", view)
	}
}

func TestModel_Keys(t *testing.T) {
	engine := newFakeEngine()
	engine.add("a", internal.StatusInProgress, 10)
	engine.add("b", internal.StatusInProgress, 20)

	m := newModel(engine, []string{"a", "b"})
	refresh(t, m)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if m.selected != 1 {
		t.Fatalf("Expected selection to move down, got %d", m.selected)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if engine.ops["b"].Status != internal.StatusPaused {
		t.Errorf("Expected b paused, got %s", engine.ops["b"].Status)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if !strings.Contains(m.message, "无法") {
		t.Errorf("Expected failure message for second pause, got %q", m.message)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if engine.ops["b"].Status != internal.StatusInProgress {
		t.Errorf("Expected b resumed, got %s", engine.ops["b"].Status)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if engine.ops["a"].Status != internal.StatusCancelled {
		t.Errorf("Expected a cancelled, got %s", engine.ops["a"].Status)
	}

	want := []string{"pause:b", "pause:b", "resume:b", "cancel:a"}
	if strings.Join(engine.calls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected calls %v, got %v", want, engine.calls)
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); !isQuit(cmd) {
		t.Error("Expected q to quit")
	}
}

func TestModel_QuitsWhenAllTerminal(t *testing.T) {
	engine := newFakeEngine()
	engine.add("a", internal.StatusCompleted, 100)
	engine.add("b", internal.StatusFailed, 40)
	engine.ops["b"].ErrorSummary = "1 of 2 files failed"

	m := newModel(engine, []string{"a", "b"})
	if cmd := refresh(t, m); !isQuit(cmd) {
		t.Fatal("Expected quit once every operation is terminal")
	}
	if !m.done {
		t.Error("Expected model to be marked done")
	}
	if !strings.Contains(m.View(), "1 of 2 files failed") {
		t.Error("Expected error summary in final view")
	}
}

func TestModel_WatchesAllOperations(t *testing.T) {
	engine := newFakeEngine()
	engine.add("a", internal.StatusCompleted, 100)
	engine.add("b", internal.StatusInProgress, 30)

	m := newModel(engine, nil)
	if cmd := refresh(t, m); isQuit(cmd) {
		t.Fatal("Expected polling to continue while watching all operations")
	}
	if len(m.rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(m.rows))
	}

	engine.ops["b"].Status = internal.StatusCompleted
	if cmd := refresh(t, m); isQuit(cmd) {
		t.Error("Expected watch-all mode to run until the user quits")
	}

	engine.add("c", internal.StatusQueued, 0)
	refresh(t, m)
	if len(m.rows) != 3 {
		t.Errorf("Expected newly queued operation to appear, got %d rows", len(m.rows))
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatBytes(1536); got != "1.5 KB" {
		t.Errorf("Expected 1.5 KB, got %s", got)
	}
	if got := formatBytes(512); got != "512 B" {
		t.Errorf("Expected 512 B, got %s", got)
	}
	if got := formatETA(-1); got != "--" {
		t.Errorf("Expected -- for unknown ETA, got %s", got)
	}
}
