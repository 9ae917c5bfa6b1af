// Package observability tracks per-handler request timing so the daemon
// can report where time is going without imposing per-request allocation.
package observability

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor is a zero-overhead-when-disabled performance monitor: one
// HandlerMetrics per distinct handler name, updated with atomics only.
type Monitor struct {
	enabled  atomic.Bool
	handlers sync.Map

	global struct {
		totalRequests atomic.Uint64
		totalDuration atomic.Uint64
	}

	bottlenecks  []Bottleneck
	bottleneckMu sync.RWMutex

	stopOnce sync.Once
	stop     chan struct{}
}

// HandlerMetrics accumulates timing for one registered handler prefix.
type HandlerMetrics struct {
	Name           string
	Count          atomic.Uint64
	Errors         atomic.Uint64
	TotalDuration  atomic.Uint64
	MinDuration    atomic.Uint64
	MaxDuration    atomic.Uint64
	latencyBuckets [10]atomic.Uint64
}

// Bottleneck is a detected performance issue attributed to one handler.
type Bottleneck struct {
	Type       string
	Location   string
	Severity   int
	Impact     float64
	DetectedAt time.Time
	Details    string
}

// NewMonitor creates an enabled Monitor and starts its background
// bottleneck sweep. Call Close to stop the sweep goroutine.
func NewMonitor() *Monitor {
	m := &Monitor{stop: make(chan struct{})}
	m.enabled.Store(true)
	go m.analyzeBottlenecks()
	return m
}

// RecordRequest attributes one completed request to handler.
func (m *Monitor) RecordRequest(handler string, duration time.Duration, isError bool) {
	if !m.enabled.Load() {
		return
	}

	val, _ := m.handlers.LoadOrStore(handler, &HandlerMetrics{Name: handler})
	metrics := val.(*HandlerMetrics)

	metrics.Count.Add(1)
	if isError {
		metrics.Errors.Add(1)
	}

	durationNs := uint64(duration.Nanoseconds())
	metrics.TotalDuration.Add(durationNs)
	updateMinMax(metrics, durationNs)
	updateLatencyBucket(metrics, durationNs)

	m.global.totalRequests.Add(1)
	m.global.totalDuration.Add(durationNs)
}

func updateMinMax(m *HandlerMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if min == 0 || d < min {
			if m.MinDuration.CompareAndSwap(min, d) {
				break
			}
			continue
		}
		break
	}
	for {
		max := m.MaxDuration.Load()
		if d > max {
			if m.MaxDuration.CompareAndSwap(max, d) {
				break
			}
			continue
		}
		break
	}
}

func updateLatencyBucket(m *HandlerMetrics, durationNs uint64) {
	ms := durationNs / 1_000_000
	idx := 0
	switch {
	case ms < 1:
		idx = 0
	case ms < 5:
		idx = 1
	case ms < 10:
		idx = 2
	case ms < 50:
		idx = 3
	case ms < 100:
		idx = 4
	case ms < 500:
		idx = 5
	case ms < 1000:
		idx = 6
	case ms < 5000:
		idx = 7
	case ms < 10000:
		idx = 8
	default:
		idx = 9
	}
	m.latencyBuckets[idx].Add(1)
}

func (m *Monitor) analyzeBottlenecks() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if !m.enabled.Load() {
				continue
			}
			found := m.detectBottlenecks()
			m.bottleneckMu.Lock()
			m.bottlenecks = found
			m.bottleneckMu.Unlock()
		}
	}
}

func (m *Monitor) detectBottlenecks() []Bottleneck {
	bottlenecks := make([]Bottleneck, 0)

	m.handlers.Range(func(_, value interface{}) bool {
		hm := value.(*HandlerMetrics)
		count := hm.Count.Load()
		if count == 0 {
			return true
		}

		avgDuration := time.Duration(hm.TotalDuration.Load() / count)
		if avgDuration > 100*time.Millisecond {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "latency",
				Location:   hm.Name,
				Severity:   8,
				Impact:     100.0,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("high latency (%v avg)", avgDuration),
			})
		}

		errors := hm.Errors.Load()
		if errors > 0 && float64(errors)/float64(count) > 0.05 {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "errors",
				Location:   hm.Name,
				Severity:   10,
				Impact:     float64(errors) / float64(count) * 100,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("%.1f%% error rate", float64(errors)/float64(count)*100),
			})
		}

		return true
	})

	return bottlenecks
}

// GetBottlenecks returns the most recently detected bottlenecks.
func (m *Monitor) GetBottlenecks() []Bottleneck {
	m.bottleneckMu.RLock()
	defer m.bottleneckMu.RUnlock()
	return append([]Bottleneck{}, m.bottlenecks...)
}

// StartTrace returns an opaque start timestamp for EndTrace, or 0 if the
// monitor is disabled.
func (m *Monitor) StartTrace() int64 {
	if !m.enabled.Load() {
		return 0
	}
	return time.Now().UnixNano()
}

// EndTrace records the request started by StartTrace.
func (m *Monitor) EndTrace(handler string, startTime int64, isError bool) {
	if startTime == 0 {
		return
	}
	m.RecordRequest(handler, time.Duration(time.Now().UnixNano()-startTime), isError)
}

// Enable/Disable toggle recording without tearing down accumulated state.
func (m *Monitor) Enable()  { m.enabled.Store(true) }
func (m *Monitor) Disable() { m.enabled.Store(false) }

// Close stops the background bottleneck sweep.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Snapshot is a point-in-time view of one handler's accumulated metrics.
type Snapshot struct {
	Name          string
	Count         uint64
	Errors        uint64
	AvgDuration   time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TotalRequests uint64
}

// Snapshots returns a Snapshot per handler seen so far, plus the global
// request count.
func (m *Monitor) Snapshots() ([]Snapshot, uint64) {
	var out []Snapshot
	m.handlers.Range(func(_, value interface{}) bool {
		hm := value.(*HandlerMetrics)
		count := hm.Count.Load()
		var avg time.Duration
		if count > 0 {
			avg = time.Duration(hm.TotalDuration.Load() / count)
		}
		out = append(out, Snapshot{
			Name:        hm.Name,
			Count:       count,
			Errors:      hm.Errors.Load(),
			AvgDuration: avg,
			MinDuration: time.Duration(hm.MinDuration.Load()),
			MaxDuration: time.Duration(hm.MaxDuration.Load()),
		})
		return true
	})
	return out, m.global.totalRequests.Load()
}

// Report renders a short human-readable summary, in the same terse
// operator-facing style as the daemon's startup log lines.
func (m *Monitor) Report() string {
	snaps, total := m.Snapshots()
	report := fmt.Sprintf("requests: %d\n", total)

	bottlenecks := m.GetBottlenecks()
	if len(bottlenecks) == 0 {
		report += "no bottlenecks detected\n"
	} else {
		report += fmt.Sprintf("%d bottleneck(s):\n", len(bottlenecks))
		for i, b := range bottlenecks {
			report += fmt.Sprintf("  %d. [%s] %s - %s (severity %d/10)\n",
				i+1, b.Type, b.Location, b.Details, b.Severity)
		}
	}

	for _, s := range snaps {
		report += fmt.Sprintf("  %s: %d reqs, %d errors, avg %v, min %v, max %v\n",
			s.Name, s.Count, s.Errors, s.AvgDuration, s.MinDuration, s.MaxDuration)
	}

	return report
}
