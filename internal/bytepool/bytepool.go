// Package bytepool provides a tiered sync.Pool of byte slices, used for
// buffers whose lifetime crosses connection boundaries (a Response body
// copied with CopyOnCreate, a daemon-level scratch buffer) where a
// per-connection mempool.Pool would outlive its owner.
package bytepool

import "sync"

// Tier sizes optimized for HTTP request/response payloads, unchanged from
// the teacher's tiering.
var defaultSizes = []int{
	512,
	2048,
	8192,
	32768,
}

// Pool is a multi-tiered byte slice pool.
type Pool struct {
	pools []*sync.Pool
	sizes []int
}

// New creates a byte pool with the standard size tiers.
func New() *Pool {
	return NewWithSizes(defaultSizes)
}

// NewWithSizes creates a byte pool with custom size tiers.
func NewWithSizes(sizes []int) *Pool {
	bp := &Pool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a byte slice of at least the requested size.
func (bp *Pool) Get(size int) []byte {
	for i, tier := range bp.sizes {
		if size <= tier {
			bufPtr := bp.pools[i].Get().(*[]byte)
			buf := *bufPtr
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a byte slice to the pool it came from. Slices not obtained
// from Get (mismatched capacity) are silently dropped for the GC to
// reclaim.
func (bp *Pool) Put(buf []byte) {
	capacity := cap(buf)
	for i, tier := range bp.sizes {
		if capacity == tier {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}
}
