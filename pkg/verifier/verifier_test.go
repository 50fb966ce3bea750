package verifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
)

func newTestVerifier(opts ...Option) *Verifier {
	return New(afero.NewOsFs(), opts...)
}

func createFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
}

func flipByte(t *testing.T, path string, offset int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer f.Close()

	b := make([]byte, 1)
	if _, err := f.ReadAt(b, offset); err != nil {
		t.Fatalf("Failed to read byte: %v", err)
	}
	b[0] ^= 0xff
	if _, err := f.WriteAt(b, offset); err != nil {
		t.Fatalf("Failed to write byte: %v", err)
	}
}

func patterned(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestHash_KnownVectors(t *testing.T) {
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "abc.txt")
	createFile(t, file, []byte("abc"))

	tests := []struct {
		algo internal.HashAlgorithm
		want string
	}{
		{internal.AlgoCRC32, "352441c2"},
		{internal.AlgoMD5, "900150983cd24fb0d6963f7d28e17f72"},
		{internal.AlgoSHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}

	v := newTestVerifier()
	for _, tt := range tests {
		t.Run(string(tt.algo), func(t *testing.T) {
			got, err := v.Hash(context.Background(), file, tt.algo)
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHash_DigestLengths(t *testing.T) {
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "data.bin")
	createFile(t, file, patterned(5000))

	v := newTestVerifier()
	for _, algo := range []internal.HashAlgorithm{internal.AlgoCRC32, internal.AlgoXXHash, internal.AlgoMD5, internal.AlgoSHA256, internal.AlgoSHA512} {
		digest, err := v.Hash(context.Background(), file, algo)
		if err != nil {
			t.Fatalf("Hash(%s) error = %v", algo, err)
		}
		inferred, ok := algorithmForDigest(digest)
		if !ok || inferred != algo {
			t.Errorf("Expected digest length of %s to infer itself, got %s", algo, inferred)
		}
	}
}

func TestHash_NonExistentFile(t *testing.T) {
	v := newTestVerifier()
	if _, err := v.Hash(context.Background(), "/non/existent/file.txt", internal.AlgoXXHash); err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestHash_Cancelled(t *testing.T) {
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "data.bin")
	createFile(t, file, patterned(1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := newTestVerifier()
	if _, err := v.Hash(ctx, file, internal.AlgoXXHash); internal.Classify(err) != internal.KindCancelled {
		t.Errorf("Expected cancelled error, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src.bin")
	same := filepath.Join(tempDir, "same.bin")
	corrupt := filepath.Join(tempDir, "corrupt.bin")
	short := filepath.Join(tempDir, "short.bin")

	data := patterned(100 * 1024)
	createFile(t, src, data)
	createFile(t, same, data)
	createFile(t, corrupt, data)
	flipByte(t, corrupt, 5000)
	createFile(t, short, data[:1000])

	v := newTestVerifier()

	if r := v.Verify(context.Background(), src, same, internal.AlgoSHA256, false); !r.Match {
		t.Errorf("Expected match, got %+v", r)
	}

	r := v.Verify(context.Background(), src, corrupt, internal.AlgoSHA256, false)
	if r.Match {
		t.Error("Expected mismatch for corrupted file")
	}
	if r.SourceDigest == "" || r.DestDigest == "" {
		t.Error("Expected both digests to be computed")
	}

	r = v.Verify(context.Background(), src, short, internal.AlgoSHA256, false)
	if r.Match {
		t.Error("Expected mismatch for different sizes")
	}
	if r.SourceDigest != "" {
		t.Error("Expected size fast-fail to skip hashing")
	}
}

func TestVerify_Sampled(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src.bin")
	dst := filepath.Join(tempDir, "dst.bin")

	data := patterned(1024 * 1024)
	createFile(t, src, data)
	createFile(t, dst, data)

	v := newTestVerifier(WithSampling(4, 4096))

	r := v.Verify(context.Background(), src, dst, internal.AlgoXXHash, true)
	if !r.Match || !r.Sampled {
		t.Fatalf("Expected sampled match, got %+v", r)
	}

	// 抽样区间之外的损坏不会被发现，这正是抽样校验较弱的地方
	flipByte(t, dst, 100*1024)
	if r := v.Verify(context.Background(), src, dst, internal.AlgoXXHash, true); !r.Match {
		t.Error("Expected corruption outside sampled ranges to go unnoticed")
	}
	if r := v.Verify(context.Background(), src, dst, internal.AlgoXXHash, false); r.Match {
		t.Error("Expected full verification to detect the corruption")
	}

	flipByte(t, dst, 0)
	if r := v.Verify(context.Background(), src, dst, internal.AlgoXXHash, true); r.Match {
		t.Error("Expected corruption inside the first sampled range to be detected")
	}
}

func TestVerifyBatch(t *testing.T) {
	tempDir := t.TempDir()

	var pairs []internal.PathPair
	for i := 0; i < 8; i++ {
		src := filepath.Join(tempDir, fmt.Sprintf("src%d.txt", i))
		dst := filepath.Join(tempDir, fmt.Sprintf("dst%d.txt", i))
		content := []byte(fmt.Sprintf("content%d", i))
		createFile(t, src, content)
		createFile(t, dst, content)
		pairs = append(pairs, internal.PathPair{Source: src, Destination: dst})
	}
	missing := filepath.Join(tempDir, "missing.txt")
	pairs = append(pairs, internal.PathPair{Source: pairs[0].Source, Destination: missing})

	v := newTestVerifier()
	results, err := v.VerifyBatch(context.Background(), pairs, internal.AlgoMD5, 3)
	if err != nil {
		t.Fatalf("VerifyBatch() error = %v", err)
	}
	if len(results) != len(pairs) {
		t.Fatalf("Expected %d results, got %d", len(pairs), len(results))
	}
	for _, p := range pairs[:8] {
		if !results[p.Destination].Match {
			t.Errorf("Expected match for %s", p.Destination)
		}
	}
	if r := results[missing]; r.Match || r.Error == "" {
		t.Errorf("Expected error for missing destination, got %+v", r)
	}
}

func TestChecksumFile_RoundTrip(t *testing.T) {
	tempDir := t.TempDir()

	var paths []string
	for i := 0; i < 3; i++ {
		p := filepath.Join(tempDir, "files", fmt.Sprintf("f%d.bin", i))
		createFile(t, p, patterned(2048+i))
		paths = append(paths, p)
	}
	sumFile := filepath.Join(tempDir, "SHA256SUMS")

	v := newTestVerifier()
	if err := v.WriteChecksumFile(context.Background(), paths, sumFile, internal.AlgoSHA256, FormatGNU); err != nil {
		t.Fatalf("WriteChecksumFile() error = %v", err)
	}

	content, err := os.ReadFile(sumFile)
	if err != nil {
		t.Fatalf("Failed to read checksum file: %v", err)
	}
	if want := " *files/f0.bin\n"; !strings.Contains(string(content), want) {
		t.Errorf("Expected GNU line ending with %q, got:\n%s", want, content)
	}

	entries, err := v.CheckChecksumFile(context.Background(), sumFile, "")
	if err != nil {
		t.Fatalf("CheckChecksumFile() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if !e.Valid {
			t.Errorf("Expected %s to be valid", e.Path)
		}
		if e.Algorithm != internal.AlgoSHA256 {
			t.Errorf("Expected inferred sha256, got %s", e.Algorithm)
		}
	}

	flipByte(t, paths[1], 10)

	entries, err = v.CheckChecksumFile(context.Background(), sumFile, "")
	if err != nil {
		t.Fatalf("CheckChecksumFile() error = %v", err)
	}
	invalid := 0
	for _, e := range entries {
		if !e.Valid {
			invalid++
			if e.Path != "files/f1.bin" {
				t.Errorf("Expected only files/f1.bin to be invalid, got %s", e.Path)
			}
		}
	}
	if invalid != 1 {
		t.Errorf("Expected exactly 1 invalid entry, got %d", invalid)
	}
}

func TestChecksumFile_BSDFormat(t *testing.T) {
	tempDir := t.TempDir()
	p := filepath.Join(tempDir, "a.txt")
	createFile(t, p, []byte("abc"))
	sumFile := filepath.Join(tempDir, "MD5SUMS")

	v := newTestVerifier()
	if err := v.WriteChecksumFile(context.Background(), []string{p}, sumFile, internal.AlgoMD5, FormatBSD); err != nil {
		t.Fatalf("WriteChecksumFile() error = %v", err)
	}

	content, _ := os.ReadFile(sumFile)
	if want := "MD5 (a.txt) = 900150983cd24fb0d6963f7d28e17f72\n"; string(content) != want {
		t.Errorf("Expected %q, got %q", want, content)
	}

	entries, err := v.CheckChecksumFile(context.Background(), sumFile, "")
	if err != nil {
		t.Fatalf("CheckChecksumFile() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].Valid {
		t.Errorf("Expected one valid entry, got %+v", entries)
	}
}

func TestParseChecksumLine(t *testing.T) {
	tests := []struct {
		line    string
		path    string
		wantErr bool
	}{
		{"900150983cd24fb0d6963f7d28e17f72 *a.txt", "a.txt", false},
		{"900150983cd24fb0d6963f7d28e17f72  dir/b c.txt", "dir/b c.txt", false},
		{"SHA256 (x.bin) = ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", "x.bin", false},
		{"nodigest", "", true},
		{"abc *x", "", true},
	}

	for _, tt := range tests {
		entry, err := parseChecksumLine(tt.line, "")
		if (err != nil) != tt.wantErr {
			t.Errorf("parseChecksumLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if err == nil && entry.Path != tt.path {
			t.Errorf("parseChecksumLine(%q) path = %q, want %q", tt.line, entry.Path, tt.path)
		}
	}
}

func TestChecksumFile_RelativePaths(t *testing.T) {
	tempDir := t.TempDir()
	chdirForTest(t, tempDir)

	createFile(t, filepath.Join(tempDir, "data", "a.txt"), []byte("alpha"))
	createFile(t, filepath.Join(tempDir, "sums", "..cache"), []byte("cached"))

	v := newTestVerifier()
	paths := []string{"data/a.txt", "sums/..cache"}
	if err := v.WriteChecksumFile(context.Background(), paths, "sums/SUMS", internal.AlgoXXHash, FormatGNU); err != nil {
		t.Fatalf("WriteChecksumFile() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tempDir, "sums", "SUMS"))
	if err != nil {
		t.Fatalf("Failed to read checksum file: %v", err)
	}
	// t.TempDir 可能经过符号链接，按当前工作目录计算期望的绝对路径
	wd, _ := os.Getwd()
	if want := " *" + filepath.ToSlash(filepath.Join(wd, "data", "a.txt")) + "\n"; !strings.Contains(string(content), want) {
		t.Errorf("Expected file outside the sum directory to be recorded as %q, got:\n%s", want, content)
	}
	if want := " *..cache\n"; !strings.Contains(string(content), want) {
		t.Errorf("Expected ..cache to stay relative, got:\n%s", content)
	}

	entries, err := v.CheckChecksumFile(context.Background(), "sums/SUMS", "")
	if err != nil {
		t.Fatalf("CheckChecksumFile() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if !e.Valid {
			t.Errorf("Expected %s to be valid, got error %q", e.Path, e.Error)
		}
	}
}

func TestChecksumName(t *testing.T) {
	base := filepath.FromSlash("/base/sums")
	tests := []struct {
		path string
		want string
	}{
		{"/base/sums/a.txt", "a.txt"},
		{"/base/sums/..cache", "..cache"},
		{"/base/sums/sub/b.txt", "sub/b.txt"},
		{"/base/data/c.txt", "/base/data/c.txt"},
		{"/base", "/base"},
	}

	for _, tt := range tests {
		got, err := checksumName(base, filepath.FromSlash(tt.path))
		if err != nil {
			t.Fatalf("checksumName(%q) error = %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("checksumName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	oldDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q) error = %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldDir); err != nil {
			t.Fatalf("restore Chdir(%q) error = %v", oldDir, err)
		}
	})
}
