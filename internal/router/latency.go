package router

import (
	"math"
	"sort"
	"sync"
	"time"
)

// latencyWindow keeps the most recent N local latencies in a ring.
type latencyWindow struct {
	mu   sync.RWMutex
	buf  []float64
	next int
	full bool
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 1000
	}
	return &latencyWindow{buf: make([]float64, size)}
}

func (w *latencyWindow) Observe(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.next] = ms
	w.next++
	if w.next >= len(w.buf) {
		w.next = 0
		w.full = true
	}
}

func (w *latencyWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// Percentiles returns nearest-rank p50 and p95 in milliseconds.
func (w *latencyWindow) Percentiles() (p50, p95 float64) {
	w.mu.RLock()
	var vals []float64
	if w.full {
		vals = append([]float64(nil), w.buf...)
	} else {
		vals = append([]float64(nil), w.buf[:w.next]...)
	}
	w.mu.RUnlock()
	if len(vals) == 0 {
		return 0, 0
	}
	sort.Float64s(vals)
	return nearestRank(vals, 0.50), nearestRank(vals, 0.95)
}

func nearestRank(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
