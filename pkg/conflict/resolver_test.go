package conflict

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string, mtime time.Time) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if !mtime.IsZero() {
		if err := fs.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("Failed to set mtime: %v", err)
		}
	}
}

func TestResolve_NoConflict(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "a", time.Time{})

	r := NewResolver(fs, WithDefaultAction(internal.ConflictSkip))
	res, err := r.Resolve("/src/a.txt", "/dst/a.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Proceed || res.Path != "/dst/a.txt" {
		t.Errorf("Expected proceed to /dst/a.txt, got %+v", res)
	}
}

func TestResolve_Skip(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "a", time.Time{})
	writeFile(t, fs, "/dst/a.txt", "b", time.Time{})

	r := NewResolver(fs, WithDefaultAction(internal.ConflictSkip))
	res, err := r.Resolve("/src/a.txt", "/dst/a.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Proceed {
		t.Error("Expected skip")
	}
}

func TestResolve_Overwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "a", time.Time{})
	writeFile(t, fs, "/dst/a.txt", "b", time.Time{})

	r := NewResolver(fs, WithDefaultAction(internal.ConflictOverwrite))
	res, _ := r.Resolve("/src/a.txt", "/dst/a.txt")
	if !res.Proceed || res.Path != "/dst/a.txt" {
		t.Errorf("Expected overwrite of /dst/a.txt, got %+v", res)
	}
}

func TestResolve_OverwriteIfNewer(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		srcTime time.Time
		dstTime time.Time
		proceed bool
	}{
		{"source newer", base.Add(time.Hour), base, true},
		{"source older", base, base.Add(time.Hour), false},
		{"same time", base, base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/src/a.txt", "a", tt.srcTime)
			writeFile(t, fs, "/dst/a.txt", "b", tt.dstTime)

			r := NewResolver(fs, WithDefaultAction(internal.ConflictOverwriteIfNewer))
			res, err := r.Resolve("/src/a.txt", "/dst/a.txt")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if res.Proceed != tt.proceed {
				t.Errorf("Expected proceed=%v, got %v", tt.proceed, res.Proceed)
			}
		})
	}
}

func TestResolve_RenameSequence(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/doc.txt", "new", time.Time{})
	writeFile(t, fs, "/dst/doc.txt", "old", time.Time{})

	r := NewResolver(fs, WithDefaultAction(internal.ConflictRename))

	res, err := r.Resolve("/src/doc.txt", "/dst/doc.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Path != "/dst/doc (1).txt" {
		t.Errorf("Expected /dst/doc (1).txt, got %s", res.Path)
	}
	writeFile(t, fs, res.Path, "new", time.Time{})

	res, err = r.Resolve("/src/doc.txt", "/dst/doc.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Path != "/dst/doc (2).txt" {
		t.Errorf("Expected /dst/doc (2).txt, got %s", res.Path)
	}
}

func TestResolve_RenameTokens(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/dst/photo.jpg", "x", time.Time{})

	clock := func() time.Time { return time.Unix(1700000000, 0) }
	r := NewResolver(fs,
		WithDefaultAction(internal.ConflictRename),
		WithPattern("{stem}_{timestamp}_{counter}{suffix}"),
		WithClock(clock),
	)

	res, err := r.Resolve("/src/photo.jpg", "/dst/photo.jpg")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Path != "/dst/photo_1700000000_1.jpg" {
		t.Errorf("Expected /dst/photo_1700000000_1.jpg, got %s", res.Path)
	}
}

func TestResolve_RenameExhausted(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/dst/a.txt", "x", time.Time{})
	writeFile(t, fs, "/dst/a (1).txt", "x", time.Time{})
	writeFile(t, fs, "/dst/a (2).txt", "x", time.Time{})

	r := NewResolver(fs, WithDefaultAction(internal.ConflictRename), WithMaxAttempts(2))
	_, err := r.Resolve("/src/a.txt", "/dst/a.txt")
	if !errors.Is(err, internal.ErrRenameExhausted) {
		t.Errorf("Expected ErrRenameExhausted, got %v", err)
	}
}

func TestResolve_AskWithoutDecider(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "a", time.Time{})
	writeFile(t, fs, "/dst/a.txt", "b", time.Time{})

	r := NewResolver(fs)
	res, err := r.Resolve("/src/a.txt", "/dst/a.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Proceed {
		t.Error("Expected Ask without decider to skip")
	}
}

func TestResolve_AskDecider(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.png", "\x89PNG\r\n\x1a\n", time.Time{})
	writeFile(t, fs, "/dst/a.png", "old", time.Time{})

	var got internal.ConflictInfo
	calls := 0
	r := NewResolver(fs, WithDecider(func(info internal.ConflictInfo) internal.ConflictResolution {
		calls++
		got = info
		return internal.ConflictResolution{Action: internal.ConflictRename, ApplyToAll: true}
	}))

	res, err := r.Resolve("/src/a.png", "/dst/a.png")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Path != "/dst/a (1).png" {
		t.Errorf("Expected /dst/a (1).png, got %s", res.Path)
	}
	if got.SourceSize != 8 || got.DestSize != 3 {
		t.Errorf("Expected sizes 8/3, got %d/%d", got.SourceSize, got.DestSize)
	}
	if got.SourceKind != "image/png" {
		t.Errorf("Expected image/png, got %s", got.SourceKind)
	}

	// ApplyToAll 之后不再询问
	if _, err := r.Resolve("/src/a.png", "/dst/a.png"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected decider to be called once, got %d", calls)
	}
	if r.Pinned() != internal.ConflictRename {
		t.Errorf("Expected pinned rename, got %s", r.Pinned())
	}
}

func TestApplyToAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "a", time.Time{})
	writeFile(t, fs, "/dst/a.txt", "b", time.Time{})

	r := NewResolver(fs, WithDefaultAction(internal.ConflictSkip))
	r.ApplyToAll(internal.ConflictOverwrite)

	res, _ := r.Resolve("/src/a.txt", "/dst/a.txt")
	if !res.Proceed {
		t.Error("Expected pinned overwrite to proceed")
	}
}
