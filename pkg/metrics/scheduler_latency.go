// Package metrics keeps in-process latency and outcome counters for tool
// calls and connection pools.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of samples for percentile queries.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	sorted     bool
	calls      int64
	failures   int64
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 500
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record adds one observation. failed counts toward the error rate.
func (lt *LatencyTracker) Record(d time.Duration, failed bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.calls++
	if failed {
		lt.failures++
	}
	if len(lt.samples) >= lt.maxSamples {
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = lt.samples[drop:]
	}
	lt.samples = append(lt.samples, d.Microseconds())
	lt.sorted = false
}

func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	stats := LatencyStats{Calls: lt.calls, Failures: lt.failures}
	n := len(lt.samples)
	if n == 0 {
		return stats
	}
	if !lt.sorted {
		sort.Slice(lt.samples, func(i, j int) bool { return lt.samples[i] < lt.samples[j] })
		lt.sorted = true
	}

	var sum int64
	for _, v := range lt.samples {
		sum += v
	}
	at := func(p float64) time.Duration {
		return time.Duration(lt.samples[int(float64(n-1)*p)]) * time.Microsecond
	}

	stats.Samples = n
	stats.Min = time.Duration(lt.samples[0]) * time.Microsecond
	stats.Max = time.Duration(lt.samples[n-1]) * time.Microsecond
	stats.Avg = time.Duration(sum/int64(n)) * time.Microsecond
	stats.P50 = at(0.50)
	stats.P95 = at(0.95)
	stats.P99 = at(0.99)
	return stats
}

type LatencyStats struct {
	Calls    int64
	Failures int64
	Samples  int
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// ToMap renders the stats with millisecond values for JSON output.
func (s LatencyStats) ToMap() map[string]any {
	var errorRate float64
	if s.Calls > 0 {
		errorRate = float64(s.Failures) / float64(s.Calls)
	}
	return map[string]any{
		"calls":       s.Calls,
		"failures":    s.Failures,
		"error_rate":  errorRate,
		"min_ms":      ms(s.Min),
		"max_ms":      ms(s.Max),
		"avg_ms":      ms(s.Avg),
		"p50_ms":      ms(s.P50),
		"p95_ms":      ms(s.P95),
		"p99_ms":      ms(s.P99),
		"sample_size": s.Samples,
	}
}

// LatencyRegistry holds one tracker per name, created on first use.
type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

func (r *LatencyRegistry) Record(name string, d time.Duration, failed bool) {
	r.mu.RLock()
	tracker, ok := r.trackers[name]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[name]; !ok {
			tracker = NewLatencyTracker(r.window)
			r.trackers[name] = tracker
		}
		r.mu.Unlock()
	}
	tracker.Record(d, failed)
}

func (r *LatencyRegistry) Stats(name string) LatencyStats {
	r.mu.RLock()
	tracker, ok := r.trackers[name]
	r.mu.RUnlock()
	if !ok {
		return LatencyStats{}
	}
	return tracker.Stats()
}

func (r *LatencyRegistry) AllStats() map[string]LatencyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]LatencyStats, len(r.trackers))
	for name, tracker := range r.trackers {
		result[name] = tracker.Stats()
	}
	return result
}
