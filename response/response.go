// Package response implements the reusable, reference-counted Response
// object: a status, a HeaderMap, and a body source that is either a
// contiguous buffer or a callback reader. A Response may be queued on
// several connections concurrently, so its refcount is atomic and its body
// is treated as immutable once first queued.
package response

import (
	"sync/atomic"

	"github.com/searchktools/mhttpd/internal/bytepool"
	"github.com/searchktools/mhttpd/internal/headers"
)

// Unknown marks a callback-sourced Response whose total size isn't known
// up front; the connection FSM must serialize it with chunked framing.
const Unknown int64 = -1

// Ownership controls what happens to a buffer-sourced Response's data when
// its refcount reaches zero.
type Ownership uint8

const (
	// Borrow: the caller retains ownership; Response never touches the
	// buffer after construction beyond reading it.
	Borrow Ownership = iota
	// CopyOnCreate: the buffer is copied into pool-owned memory
	// immediately, so mutating the caller's buffer afterwards can never
	// affect transmitted bytes.
	CopyOnCreate
	// FreeOnDestroy: the Response takes ownership of the caller's buffer
	// and releases it (via the byte pool) once the refcount reaches zero.
	FreeOnDestroy
)

// Reader streams a callback-sourced body. pos is the sum of nonnegative
// returns so far for this particular queuing (each queuing of a shared
// Response gets an independent pos sequence). Returning 0 signals the
// caller is not ready yet: valid in blocking modes, but a fatal usage
// error in the external, non-blocking mode (see
// connfsm.ErrBusyWaitCallback). Returning -1 ends the stream with an
// error; the connection is closed mid-transmission.
type Reader func(pos int64, buf []byte) (n int, done bool)

// FreeFunc is invoked exactly once, when the Response's refcount reaches
// zero, regardless of body source.
type FreeFunc func()

// Response is the reusable, reference-counted body+headers object queued
// on a session by a handler.
type Response struct {
	Headers headers.Map
	Status  int

	size int64 // Unknown for callback bodies of unbounded length

	buf       []byte
	ownership Ownership

	reader Reader
	free   FreeFunc

	pool *bytepool.Pool

	refcount atomic.Int32
}

// FromBuffer creates a Response over a contiguous byte buffer. Exactly one
// ownership policy governs what happens to data.
func FromBuffer(data []byte, ownership Ownership, pool *bytepool.Pool) *Response {
	r := &Response{
		Status:    200,
		size:      int64(len(data)),
		ownership: ownership,
		pool:      pool,
	}
	r.refcount.Store(1)

	switch ownership {
	case CopyOnCreate:
		var owned []byte
		if pool != nil {
			owned = pool.Get(len(data))
		} else {
			owned = make([]byte, len(data))
		}
		copy(owned, data)
		r.buf = owned
	default: // Borrow, FreeOnDestroy
		r.buf = data
	}

	return r
}

// FromCallback creates a Response whose body is produced on demand. size
// may be Unknown, in which case the connection FSM emits it chunked.
func FromCallback(size int64, reader Reader, free FreeFunc) *Response {
	r := &Response{
		Status: 200,
		size:   size,
		reader: reader,
		free:   free,
	}
	r.refcount.Store(1)
	return r
}

// Size returns the declared body size, or Unknown.
func (r *Response) Size() int64 {
	return r.size
}

// IsCallback reports whether the body is produced by a Reader rather than
// served from a contiguous buffer.
func (r *Response) IsCallback() bool {
	return r.reader != nil
}

// Buffer returns the buffer-sourced body. Only valid when !IsCallback().
func (r *Response) Buffer() []byte {
	return r.buf
}

// Read pulls the next chunk from a callback-sourced body. See Reader for
// the contract on pos and the meaning of 0/-1 returns.
func (r *Response) Read(pos int64, buf []byte) (n int, done bool) {
	return r.reader(pos, buf)
}

// AddHeader appends a response header, validated the same way as any other
// HeaderMap entry.
func (r *Response) AddHeader(key, value string) error {
	return r.Headers.Append(headers.ResponseHeader, key, value)
}

// DelHeader removes every response header matching key.
func (r *Response) DelHeader(key string) int {
	return r.Headers.Del(headers.ResponseHeader, key)
}

// Incref marks the Response as queued on one more connection. Safe for
// concurrent use, since a Response may be shared across connections and
// threads.
func (r *Response) Incref() {
	r.refcount.Add(1)
}

// Decref marks the Response as finished or aborted on one connection.
// When the count reaches zero, the free callback runs and owned buffers
// are released.
func (r *Response) Decref() {
	if r.refcount.Add(-1) == 0 {
		r.destroy()
	}
}

// RefCount returns the current reference count, mainly for tests and
// diagnostics.
func (r *Response) RefCount() int32 {
	return r.refcount.Load()
}

func (r *Response) destroy() {
	if r.free != nil {
		r.free()
	}
	if r.ownership == FreeOnDestroy && r.buf != nil {
		if r.pool != nil {
			r.pool.Put(r.buf)
		}
		r.buf = nil
	}
	if r.ownership == CopyOnCreate && r.buf != nil && r.pool != nil {
		r.pool.Put(r.buf)
		r.buf = nil
	}
}
