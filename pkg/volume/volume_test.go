package volume

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSame_SameDirectory(t *testing.T) {
	tempDir := t.TempDir()
	a := filepath.Join(tempDir, "a.txt")
	if err := os.WriteFile(a, []byte("a"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !Same(a, filepath.Join(tempDir, "b.txt")) {
		t.Error("Expected files in the same directory to share a volume")
	}
}

func TestSame_MissingDestinationUsesParent(t *testing.T) {
	tempDir := t.TempDir()

	if !Same(tempDir, filepath.Join(tempDir, "not", "yet", "created.txt")) {
		t.Error("Expected nested missing path to resolve to the existing parent")
	}
}

func TestID(t *testing.T) {
	if _, ok := ID(t.TempDir()); !ok {
		t.Error("Expected volume id for temp dir")
	}
}
