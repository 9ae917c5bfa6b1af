package pools

import (
	"sync"
	"sync/atomic"
)

// ConnectionPool recycles *connfsm.Conn instances across accepted TCP
// connections instead of allocating a fresh one (with its own read/write
// buffers) per accept.
type ConnectionPool struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
}

// Poolable is implemented by objects a ConnectionPool can recycle: Reset
// clears per-connection state before the object is handed to a new
// connection.
type Poolable interface {
	Reset()
}

// NewConnectionPool creates a pool that calls newFunc to construct a fresh
// object on a miss.
func NewConnectionPool(newFunc func() any) *ConnectionPool {
	cp := &ConnectionPool{}
	cp.pool.New = newFunc
	return cp
}

// Get retrieves a (possibly reused) object from the pool.
func (cp *ConnectionPool) Get() any {
	cp.gets.Add(1)
	return cp.pool.Get()
}

// Put resets obj (if it implements Poolable) and returns it to the pool.
func (cp *ConnectionPool) Put(obj any) {
	if poolable, ok := obj.(Poolable); ok {
		poolable.Reset()
	}
	cp.puts.Add(1)
	cp.pool.Put(obj)
}

// Stats reports gets, puts, and the resulting reuse rate.
func (cp *ConnectionPool) Stats() (gets, puts uint64, hitRate float64) {
	g := cp.gets.Load()
	p := cp.puts.Load()
	if g > 0 {
		hitRate = float64(p) / float64(g)
	}
	return g, p, hitRate
}
