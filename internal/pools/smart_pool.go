// Package pools provides object pooling and GC tuning for the daemon,
// separate from internal/bytepool's raw byte-slice tiers and
// internal/mempool's per-connection arena.
package pools

import (
	"sync"
	"sync/atomic"
	"time"
)

// SmartPool is a sync.Pool wrapper that tracks hit rate and can warm
// itself up ahead of load. The daemon does not use it; it pools only
// connections, through ConnectionPool.
type SmartPool struct {
	pool      sync.Pool
	newFunc   func() any
	resetFunc func(any)

	gets      atomic.Uint64
	puts      atomic.Uint64
	news      atomic.Uint64
	startTime time.Time

	warmupSize    int
	targetHitRate float64
}

// SmartPoolConfig configures a SmartPool.
type SmartPoolConfig struct {
	New           func() any
	Reset         func(any)
	WarmupSize    int
	TargetHitRate float64
}

// NewSmartPool creates a pool and pre-allocates config.WarmupSize objects.
func NewSmartPool(config SmartPoolConfig) *SmartPool {
	if config.WarmupSize == 0 {
		config.WarmupSize = 100
	}
	if config.TargetHitRate == 0 {
		config.TargetHitRate = 0.90
	}

	sp := &SmartPool{
		newFunc:       config.New,
		resetFunc:     config.Reset,
		warmupSize:    config.WarmupSize,
		targetHitRate: config.TargetHitRate,
		startTime:     time.Now(),
	}

	sp.pool.New = func() any {
		sp.news.Add(1)
		return config.New()
	}

	sp.Warmup()
	return sp
}

// Get acquires an object from the pool.
func (sp *SmartPool) Get() any {
	sp.gets.Add(1)
	return sp.pool.Get()
}

// Put resets (if a Reset func was configured) and returns obj to the pool.
func (sp *SmartPool) Put(obj any) {
	if obj == nil {
		return
	}
	sp.puts.Add(1)
	if sp.resetFunc != nil {
		sp.resetFunc(obj)
	}
	sp.pool.Put(obj)
}

// Warmup pre-allocates warmupSize objects.
func (sp *SmartPool) Warmup() {
	for i := 0; i < sp.warmupSize; i++ {
		sp.pool.Put(sp.newFunc())
	}
}

// SmartPoolStats is a point-in-time snapshot of a SmartPool's counters.
type SmartPoolStats struct {
	Gets    uint64
	Puts    uint64
	News    uint64
	HitRate float64
	Uptime  time.Duration
}

// Stats returns the current counters.
func (sp *SmartPool) Stats() SmartPoolStats {
	gets := sp.gets.Load()
	puts := sp.puts.Load()
	news := sp.news.Load()

	hitRate := 0.0
	if gets > 0 {
		if hits := gets - news; hits > 0 {
			hitRate = float64(hits) / float64(gets)
		}
	}

	return SmartPoolStats{
		Gets:    gets,
		Puts:    puts,
		News:    news,
		HitRate: hitRate,
		Uptime:  time.Since(sp.startTime),
	}
}

// Optimize tops up the pool when its hit rate has fallen below target
// under sustained load; call periodically from a daemon housekeeping tick.
func (sp *SmartPool) Optimize() {
	stats := sp.Stats()
	if stats.HitRate < sp.targetHitRate && stats.Gets > 1000 {
		additional := sp.warmupSize / 10
		for i := 0; i < additional; i++ {
			sp.pool.Put(sp.newFunc())
		}
	}
}
