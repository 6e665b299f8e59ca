// Package reqmetrics implements the Metrics Recorder's (C10) in-process
// rolling window: a ring buffer of the last window_size request latencies
// plus total/per-status/per-route counters, snapshotted into count/avg/
// p95/max for /api/monitoring/stats. This sits alongside, not instead of,
// the Prometheus registry in internal/telemetry — the spec's bespoke
// recorder is part of the ambient stack regardless of the Non-goal that
// excludes an external metrics emitter.
package reqmetrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindowSize is the ring buffer capacity when none is configured.
const DefaultWindowSize = 2000

// topN bounds how many distinct (method,path) pairs Snapshot reports,
// keeping the response bounded even under high route cardinality.
const topN = 20

// Recorder is the process-wide rolling-window request recorder. One mutex
// guards all fields; Observe never does I/O, so it is safe to call from
// the hot request path.
type Recorder struct {
	mu sync.Mutex

	window    []time.Duration
	next      int
	filled    int
	total     int64
	byStatus  map[int]int64
	byRoute   map[routeKey]int64
}

type routeKey struct {
	Method string
	Path   string
}

// New builds a Recorder with a ring buffer of windowSize samples
// (DefaultWindowSize if windowSize <= 0).
func New(windowSize int) *Recorder {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Recorder{
		window:   make([]time.Duration, windowSize),
		byStatus: make(map[int]int64),
		byRoute:  make(map[routeKey]int64),
	}
}

// Observe records one completed request's latency, status code, and route.
func (r *Recorder) Observe(method, path string, status int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.window[r.next] = latency
	r.next = (r.next + 1) % len(r.window)
	if r.filled < len(r.window) {
		r.filled++
	}
	r.total++
	r.byStatus[status]++
	r.byRoute[routeKey{Method: method, Path: path}]++
}

// RouteCount is one entry of Snapshot's top-N (method,path) breakdown.
type RouteCount struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Count  int64  `json:"count"`
}

// Snapshot is the point-in-time view returned by /api/monitoring/stats.
type Snapshot struct {
	Count        int64           `json:"count"`
	WindowSize   int             `json:"window_size"`
	AvgMillis    float64         `json:"avg_ms"`
	P95Millis    float64         `json:"p95_ms"`
	MaxMillis    float64         `json:"max_ms"`
	ByStatus     map[int]int64   `json:"by_status"`
	TopRoutes    []RouteCount    `json:"top_routes"`
}

// Snapshot computes count/avg/p95/max over the current window contents
// and the all-time total/status/route counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	samples := make([]time.Duration, r.filled)
	copy(samples, r.window[:r.filled])
	byStatus := make(map[int]int64, len(r.byStatus))
	for k, v := range r.byStatus {
		byStatus[k] = v
	}
	routes := make([]RouteCount, 0, len(r.byRoute))
	for k, v := range r.byRoute {
		routes = append(routes, RouteCount{Method: k.Method, Path: k.Path, Count: v})
	}
	total := r.total
	windowSize := len(r.window)
	r.mu.Unlock()

	sort.Slice(routes, func(i, j int) bool { return routes[i].Count > routes[j].Count })
	if len(routes) > topN {
		routes = routes[:topN]
	}

	snap := Snapshot{
		Count:      total,
		WindowSize: windowSize,
		ByStatus:   byStatus,
		TopRoutes:  routes,
	}
	if len(samples) == 0 {
		return snap
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	snap.AvgMillis = millis(sum) / float64(len(samples))
	snap.MaxMillis = millis(samples[len(samples)-1])
	snap.P95Millis = millis(samples[p95Index(len(samples))])
	return snap
}

func p95Index(n int) int {
	idx := int(float64(n) * 0.95)
	if idx >= n {
		idx = n - 1
	}
	return idx
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
