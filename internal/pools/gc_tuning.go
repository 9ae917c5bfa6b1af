package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds garbage collector tuning parameters for Apply. The daemon
// does not call Apply itself; a host process applies them.
type GCConfig struct {
	// GOGC is the GC target percentage; 0 leaves the runtime default.
	GOGC int
	// MemoryLimit is a soft memory limit in bytes; 0 means no limit.
	MemoryLimit int64
	// MinRetainExtra is extra memory to retain up front, reducing GC
	// frequency during the first burst of traffic after start.
	MinRetainExtra int64
}

// DefaultGCConfig favors throughput over immediate memory reclaim, matching
// a long-lived connection-serving daemon rather than a short CLI process.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		GOGC:           200,
		MinRetainExtra: 50 << 20,
	}
}

// Apply installs cfg's settings into the running process.
func Apply(cfg GCConfig) {
	if cfg.GOGC > 0 {
		debug.SetGCPercent(cfg.GOGC)
	}
	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
	}
	if cfg.MinRetainExtra > 0 {
		runtime.GC()
		_ = make([]byte, cfg.MinRetainExtra)
	}
}

// GCStats is a snapshot of garbage collector activity. It is not part of
// daemon.Stats.
type GCStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	LastPause    time.Duration
	AvgPause     time.Duration
	AllocBytes   uint64
	TotalAlloc   uint64
	Sys          uint64
	NumGoroutine int
}

// Stats reads current GC/memory statistics from the runtime.
func Stats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		AllocBytes:   ms.Alloc,
		TotalAlloc:   ms.TotalAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])

		var totalPause uint64
		numPauses := ms.NumGC
		if numPauses > 256 {
			numPauses = 256
		}
		for i := uint32(0); i < numPauses; i++ {
			totalPause += ms.PauseNs[i]
		}

		stats.PauseTotal = time.Duration(totalPause)
		if numPauses > 0 {
			stats.AvgPause = time.Duration(totalPause / uint64(numPauses))
		}
	}

	return stats
}
