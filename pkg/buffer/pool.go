// Package buffer provides adaptive I/O chunk sizing and pooled buffers.
//
// Chunk sizes scale with file size so tiny files never allocate large
// buffers while multi-gigabyte transfers stream in large sequential reads.
// Buffers are pooled per tier to reduce allocations across many files.
package buffer

import (
	"sync"

	"github.com/moyu-x/file-transfer/internal"
)

const (
	// TinySize is used for files below 1MB
	TinySize = 4 * internal.KB
	// SmallSize is used for files below 10MB
	SmallSize = 64 * internal.KB
	// MediumSize is used for files below 100MB
	MediumSize = 1 * internal.MB
	// LargeSize is used for files below 1GB
	LargeSize = 8 * internal.MB
	// HugeSize is used for files of 1GB and more
	HugeSize = 32 * internal.MB
)

var tiers = []int{TinySize, SmallSize, MediumSize, LargeSize, HugeSize}

// SizeFor returns the chunk size for a file of the given size.
//
//	< 1MB   -> 4KB
//	< 10MB  -> 64KB
//	< 100MB -> 1MB
//	< 1GB   -> 8MB
//	>= 1GB  -> 32MB
func SizeFor(fileSize int64) int {
	switch {
	case fileSize < 1*internal.MB:
		return TinySize
	case fileSize < 10*internal.MB:
		return SmallSize
	case fileSize < 100*internal.MB:
		return MediumSize
	case fileSize < 1*internal.GB:
		return LargeSize
	default:
		return HugeSize
	}
}

// Pool manages reusable buffers of the tier sizes.
type Pool struct {
	pools map[int]*sync.Pool
}

// NewPool creates a pool with one sync.Pool per tier.
func NewPool() *Pool {
	p := &Pool{pools: make(map[int]*sync.Pool, len(tiers))}
	for _, size := range tiers {
		size := size
		p.pools[size] = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
	return p
}

// Get returns a buffer of exactly size bytes.
// Sizes that are not a tier are allocated directly and never pooled.
func (p *Pool) Get(size int) []byte {
	if sp, ok := p.pools[size]; ok {
		bufPtr := sp.Get().(*[]byte)
		return (*bufPtr)[:size]
	}
	return make([]byte, size)
}

// Put returns a buffer to the pool matching its capacity.
func (p *Pool) Put(buf []byte) {
	if sp, ok := p.pools[cap(buf)]; ok {
		buf = buf[:cap(buf)]
		sp.Put(&buf)
	}
}

var globalPool = NewPool()

// Get returns a buffer from the global pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
