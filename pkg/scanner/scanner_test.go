package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
)

func TestFileWalker_Walk(t *testing.T) {
	tempDir := t.TempDir()

	testFiles := []string{
		"file1.txt",
		"file2.txt",
		".hidden_file",
		"subdir/file3.txt",
		".hidden_dir/.hidden_file2",
	}

	for _, file := range testFiles {
		fullPath := filepath.Join(tempDir, file)
		dir := filepath.Dir(fullPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte("test content"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}

	walker := NewFileWalker(afero.NewOsFs())
	visitedFiles := []string{}

	err := walker.Walk(tempDir, func(path string, info os.FileInfo) error {
		relPath, _ := filepath.Rel(tempDir, path)
		visitedFiles = append(visitedFiles, relPath)
		return nil
	})

	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if len(visitedFiles) != len(testFiles) {
		t.Errorf("Expected %d files, got %d", len(testFiles), len(visitedFiles))
	}

	for _, expectedFile := range testFiles {
		found := false
		for _, visitedFile := range visitedFiles {
			if visitedFile == expectedFile {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("File %s not found in visited files", expectedFile)
		}
	}
}

func TestFileWalker_CountFiles(t *testing.T) {
	fs := afero.NewMemMapFs()

	testDirs := []string{"/data/dir1", "/data/dir2"}
	filesPerDir := 5

	for _, dir := range testDirs {
		for i := 0; i < filesPerDir; i++ {
			filePath := filepath.Join(dir, fmt.Sprintf("file%d.txt", i))
			if err := afero.WriteFile(fs, filePath, []byte("test"), 0644); err != nil {
				t.Fatalf("Failed to create test file: %v", err)
			}
		}
	}

	walker := NewFileWalker(fs)
	count, err := walker.CountFiles(testDirs)
	if err != nil {
		t.Fatalf("CountFiles() error = %v", err)
	}

	expectedCount := len(testDirs) * filesPerDir
	if count != expectedCount {
		t.Errorf("Expected %d files, got %d", expectedCount, count)
	}
}

func TestFileWalker_CountFiles_EmptyDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/empty", 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	walker := NewFileWalker(fs)
	count, err := walker.CountFiles([]string{"/empty"})

	if err != nil {
		t.Fatalf("CountFiles() error = %v", err)
	}

	if count != 0 {
		t.Errorf("Expected 0 files, got %d", count)
	}
}

func TestFileWalker_CountFiles_NonExistentDir(t *testing.T) {
	walker := NewFileWalker(afero.NewMemMapFs())
	if _, err := walker.CountFiles([]string{"/non/existent/directory"}); err == nil {
		t.Error("Expected error for non-existent directory")
	}
}

func TestFileWalker_WalkDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, dir := range []string{"/root/a/b", "/root/c"} {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
	}
	if err := afero.WriteFile(fs, "/root/a/file.txt", []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	var dirs []string
	err := NewFileWalker(fs).WalkDirs("/root", func(path string, info os.FileInfo) error {
		dirs = append(dirs, filepath.ToSlash(path))
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDirs() error = %v", err)
	}

	want := []string{"/root", "/root/a", "/root/a/b", "/root/c"}
	if len(dirs) != len(want) {
		t.Fatalf("Expected %v, got %v", want, dirs)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, dirs[i])
		}
	}
}

func TestFileWalker_Expand(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/src/tree/a.txt":     "aaa",
		"/src/tree/sub/b.txt": "bbbbb",
		"/src/single.txt":     "single",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}
	if err := fs.MkdirAll("/src/tree/empty", 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	plan, err := NewFileWalker(fs).Expand([]internal.PathPair{
		{Source: "/src/single.txt", Destination: "/dst/single.txt"},
		{Source: "/src/tree", Destination: "/dst/tree"},
	})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	wantPairs := []internal.PathPair{
		{Source: "/src/single.txt", Destination: "/dst/single.txt"},
		{Source: "/src/tree/a.txt", Destination: "/dst/tree/a.txt"},
		{Source: "/src/tree/sub/b.txt", Destination: "/dst/tree/sub/b.txt"},
	}
	if len(plan.Pairs) != len(wantPairs) {
		t.Fatalf("Expected %d pairs, got %d: %v", len(wantPairs), len(plan.Pairs), plan.Pairs)
	}
	for i, want := range wantPairs {
		got := plan.Pairs[i]
		if filepath.ToSlash(got.Source) != want.Source || filepath.ToSlash(got.Destination) != want.Destination {
			t.Errorf("Expected %v at %d, got %v", want, i, got)
		}
	}

	if plan.TotalBytes() != int64(len("single")+len("aaa")+len("bbbbb")) {
		t.Errorf("Unexpected total bytes %d", plan.TotalBytes())
	}

	wantDirs := []string{"/dst/tree", "/dst/tree/empty", "/dst/tree/sub"}
	if len(plan.Dirs) != len(wantDirs) {
		t.Fatalf("Expected dirs %v, got %v", wantDirs, plan.Dirs)
	}
	for i, want := range wantDirs {
		if got := filepath.ToSlash(plan.Dirs[i].Destination); got != want {
			t.Errorf("Expected dir %s at %d, got %s", want, i, got)
		}
	}
}

func TestFileWalker_Expand_MissingSource(t *testing.T) {
	_, err := NewFileWalker(afero.NewMemMapFs()).Expand([]internal.PathPair{{Source: "/missing", Destination: "/dst"}})
	if internal.Classify(err) != internal.KindNotFound {
		t.Errorf("Expected not_found error, got %v", err)
	}
}
