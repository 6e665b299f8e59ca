package reqmetrics

import (
	"testing"
	"time"
)

func TestNew_DefaultsWindowSize(t *testing.T) {
	r := New(0)
	if len(r.window) != DefaultWindowSize {
		t.Errorf("window size = %d, want %d", len(r.window), DefaultWindowSize)
	}
}

func TestObserve_EmptySnapshot(t *testing.T) {
	r := New(10)
	snap := r.Snapshot()
	if snap.Count != 0 || snap.AvgMillis != 0 || snap.MaxMillis != 0 {
		t.Errorf("empty recorder snapshot should be all-zero, got %+v", snap)
	}
}

func TestObserve_AvgMaxP95(t *testing.T) {
	r := New(100)
	latencies := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		100 * time.Millisecond,
	}
	for _, l := range latencies {
		r.Observe("GET", "/api/pods", 200, l)
	}

	snap := r.Snapshot()
	if snap.Count != 5 {
		t.Errorf("count = %d, want 5", snap.Count)
	}
	wantAvg := float64(10+20+30+40+100) / 5
	if snap.AvgMillis != wantAvg {
		t.Errorf("avg = %f, want %f", snap.AvgMillis, wantAvg)
	}
	if snap.MaxMillis != 100 {
		t.Errorf("max = %f, want 100", snap.MaxMillis)
	}
	if snap.ByStatus[200] != 5 {
		t.Errorf("by_status[200] = %d, want 5", snap.ByStatus[200])
	}
}

func TestObserve_RingBufferWraparound(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Observe("GET", "/x", 200, time.Duration(i+1)*time.Millisecond)
	}
	// Only the last 3 samples (3ms, 4ms, 5ms) remain in the window, but the
	// all-time total counter keeps counting every observation.
	snap := r.Snapshot()
	if snap.Count != 5 {
		t.Errorf("total count = %d, want 5 (all-time, not windowed)", snap.Count)
	}
	if snap.MaxMillis != 5 {
		t.Errorf("max = %f, want 5 (3ms/4ms/5ms window)", snap.MaxMillis)
	}
	wantAvg := float64(3+4+5) / 3
	if snap.AvgMillis != wantAvg {
		t.Errorf("avg = %f, want %f", snap.AvgMillis, wantAvg)
	}
}

func TestSnapshot_TopRoutesSortedAndBounded(t *testing.T) {
	r := New(1000)
	for i := 0; i < 25; i++ {
		route := "/route"
		if i%2 == 0 {
			route = "/popular"
		}
		r.Observe("GET", route, 200, time.Millisecond)
	}

	snap := r.Snapshot()
	if len(snap.TopRoutes) > topN {
		t.Errorf("top routes len = %d, want <= %d", len(snap.TopRoutes), topN)
	}
	if snap.TopRoutes[0].Path != "/popular" {
		t.Errorf("most frequent route should sort first, got %q", snap.TopRoutes[0].Path)
	}
}

func TestP95Index(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 0},
		{10, 9},
		{20, 19},
		{100, 95},
	}
	for _, tt := range tests {
		if got := p95Index(tt.n); got != tt.want {
			t.Errorf("p95Index(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
