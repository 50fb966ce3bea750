package verifier

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

// ChecksumFormat 校验文件的行格式
type ChecksumFormat string

const (
	// FormatGNU "<hex> *<filename>"，与 sha256sum -b 等工具兼容
	FormatGNU ChecksumFormat = "gnu"
	// FormatBSD "SHA256 (<filename>) = <hex>"
	FormatBSD ChecksumFormat = "bsd"
)

// ChecksumEntry 校验文件中的一行及其检查结果
type ChecksumEntry struct {
	Path      string                 `json:"path"`
	Algorithm internal.HashAlgorithm `json:"algorithm"`
	Expected  string                 `json:"expected"`
	Actual    string                 `json:"actual,omitempty"`
	Valid     bool                   `json:"valid"`
	Error     string                 `json:"error,omitempty"`
}

// WriteChecksumFile 计算每个文件的摘要并写入 output
// 文件名相对 output 所在目录记录，目录之外的文件记录绝对路径
func (v *Verifier) WriteChecksumFile(ctx context.Context, paths []string, output string, algo internal.HashAlgorithm, format ChecksumFormat) error {
	if algo == "" {
		algo = internal.DefaultHashAlgorithm
	}
	if format == "" {
		format = FormatGNU
	}

	baseDir := filepath.Dir(output)
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("解析校验文件目录失败: %w", err)
	}

	var b strings.Builder
	for _, path := range paths {
		digest, err := v.Hash(ctx, path, algo)
		if err != nil {
			return err
		}

		name, err := checksumName(absBase, path)
		if err != nil {
			return err
		}

		switch format {
		case FormatBSD:
			fmt.Fprintf(&b, "%s (%s) = %s\n", strings.ToUpper(string(algo)), name, digest)
		case FormatGNU:
			fmt.Fprintf(&b, "%s *%s\n", digest, name)
		default:
			return fmt.Errorf("%w: checksum format %q", internal.ErrInvalidInput, format)
		}
	}

	if err := v.fs.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("创建校验文件目录失败: %w", err)
	}
	if err := afero.WriteFile(v.fs, output, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("写入校验文件失败: %w", err)
	}

	logger.Get().Info().Msgf("已写入校验文件: %s (%d 个文件)", output, len(paths))
	return nil
}

// CheckChecksumFile 重新计算校验文件中每个条目的摘要
// algo 为空时从 BSD 标签或摘要长度推断
func (v *Verifier) CheckChecksumFile(ctx context.Context, path string, algo internal.HashAlgorithm) ([]ChecksumEntry, error) {
	file, err := v.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开校验文件失败: %w", err)
	}
	defer file.Close()

	baseDir := filepath.Dir(path)
	var entries []ChecksumEntry

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseChecksumLine(line, algo)
		if err != nil {
			return nil, fmt.Errorf("校验文件第 %d 行格式错误: %w", lineNo, err)
		}

		target := filepath.FromSlash(entry.Path)
		if !filepath.IsAbs(target) {
			target = filepath.Join(baseDir, target)
		}

		actual, err := v.Hash(ctx, target, entry.Algorithm)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Actual = actual
			entry.Valid = strings.EqualFold(actual, entry.Expected)
		}
		if !entry.Valid {
			logger.Get().Warn().Str("file", entry.Path).Msg("校验失败")
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取校验文件失败: %w", err)
	}

	return entries, nil
}

// checksumName 返回 path 相对 absBase 的路径，在 absBase 之外时返回绝对路径
func checksumName(absBase, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", internal.NewError("checksum", path, err)
	}
	rel, err := filepath.Rel(absBase, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs), nil
	}
	return filepath.ToSlash(rel), nil
}

func parseChecksumLine(line string, algo internal.HashAlgorithm) (ChecksumEntry, error) {
	// BSD: ALGO (name) = digest
	if open := strings.Index(line, " ("); open > 0 {
		if eq := strings.LastIndex(line, ") = "); eq > open {
			tag, err := internal.ParseHashAlgorithm(line[:open])
			if err == nil {
				return ChecksumEntry{
					Path:      line[open+2 : eq],
					Algorithm: tag,
					Expected:  strings.TrimSpace(line[eq+4:]),
				}, nil
			}
		}
	}

	// GNU: digest *name (二进制) 或 digest  name (文本)
	sep := strings.IndexByte(line, ' ')
	if sep <= 0 || sep+2 > len(line) {
		return ChecksumEntry{}, fmt.Errorf("%w: %q", internal.ErrInvalidInput, line)
	}
	digest := line[:sep]
	name := line[sep+1:]
	if name[0] == '*' || name[0] == ' ' {
		name = name[1:]
	}
	if name == "" {
		return ChecksumEntry{}, fmt.Errorf("%w: missing file name", internal.ErrInvalidInput)
	}

	if algo == "" {
		inferred, ok := algorithmForDigest(digest)
		if !ok {
			return ChecksumEntry{}, fmt.Errorf("%w: cannot infer algorithm from digest %q", internal.ErrInvalidInput, digest)
		}
		algo = inferred
	}

	return ChecksumEntry{Path: name, Algorithm: algo, Expected: strings.ToLower(digest)}, nil
}
