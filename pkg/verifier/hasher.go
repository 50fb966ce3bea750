package verifier

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/buffer"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

// NewHash 创建算法对应的哈希对象
func NewHash(algo internal.HashAlgorithm) (hash.Hash, error) {
	switch algo {
	case internal.AlgoCRC32:
		return crc32.NewIEEE(), nil
	case internal.AlgoXXHash, "":
		return xxhash.New(), nil
	case internal.AlgoMD5:
		return md5.New(), nil
	case internal.AlgoSHA256:
		return sha256.New(), nil
	case internal.AlgoSHA512:
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("%w: hash algorithm %q", internal.ErrInvalidInput, algo)
}

// algorithmForDigest 根据十六进制摘要长度推断算法
func algorithmForDigest(digest string) (internal.HashAlgorithm, bool) {
	switch len(digest) {
	case 8:
		return internal.AlgoCRC32, true
	case 16:
		return internal.AlgoXXHash, true
	case 32:
		return internal.AlgoMD5, true
	case 64:
		return internal.AlgoSHA256, true
	case 128:
		return internal.AlgoSHA512, true
	}
	return "", false
}

// Hash 流式计算文件摘要，缓冲区大小随文件大小变化
func (v *Verifier) Hash(ctx context.Context, path string, algo internal.HashAlgorithm) (string, error) {
	file, err := v.fs.Open(path)
	if err != nil {
		return "", internal.NewError("hash", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", internal.NewError("hash", path, err)
	}

	h, err := NewHash(algo)
	if err != nil {
		return "", err
	}

	buf := buffer.Get(buffer.SizeFor(info.Size()))
	defer buffer.Put(buf)

	for {
		if err := checkpoint(ctx); err != nil {
			return "", internal.NewError("hash", path, err)
		}
		n, rerr := file.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", internal.NewError("hash", path, rerr)
		}
	}

	digest := hex.EncodeToString(h.Sum(nil))
	logger.Get().Trace().Msgf("文件哈希计算完成: %s -> %s", path, digest)
	return digest, nil
}

// HashSampled 只对均匀分布的若干区间计算摘要，并混入文件长度。
// 这是近似校验：区间之外的损坏无法发现，只用于超大文件的快速检查。
func (v *Verifier) HashSampled(ctx context.Context, path string, algo internal.HashAlgorithm) (string, error) {
	file, err := v.fs.Open(path)
	if err != nil {
		return "", internal.NewError("hash", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", internal.NewError("hash", path, err)
	}
	size := info.Size()

	h, err := NewHash(algo)
	if err != nil {
		return "", err
	}

	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(size))
	h.Write(sizeBuf[:])

	count, chunk := int64(v.sampleCount), int64(v.sampleSize)
	if size <= count*chunk || count < 2 {
		// 文件太小，等价于完整读取
		count, chunk = 1, size
	}

	buf := make([]byte, chunk)
	for i := int64(0); i < count; i++ {
		if err := checkpoint(ctx); err != nil {
			return "", internal.NewError("hash", path, err)
		}
		var offset int64
		if count > 1 {
			offset = i * (size - chunk) / (count - 1)
		}
		n, rerr := file.ReadAt(buf, offset)
		if rerr != nil && rerr != io.EOF {
			return "", internal.NewError("hash", path, rerr)
		}
		h.Write(buf[:n])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
