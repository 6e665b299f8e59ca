package audit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	r.RemoteAddr = "10.0.0.9:1234"

	ip := clientIP(r)
	if ip.String() != "203.0.113.5" {
		t.Errorf("clientIP() = %q, want 203.0.113.5", ip.String())
	}
}

func TestClientIP_FallsBackToRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.7")
	r.RemoteAddr = "10.0.0.9:1234"

	ip := clientIP(r)
	if ip.String() != "198.51.100.7" {
		t.Errorf("clientIP() = %q, want 198.51.100.7", ip.String())
	}
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"

	ip := clientIP(r)
	if ip.String() != "192.0.2.1" {
		t.Errorf("clientIP() = %q, want 192.0.2.1", ip.String())
	}
}

func TestClientIP_InvalidRemoteAddrReturnsInvalid(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "not-an-address"

	if ip := clientIP(r); ip.IsValid() {
		t.Errorf("clientIP() = %v, want invalid for a malformed RemoteAddr", ip)
	}
}

func TestLog_DropsWhenBufferFull(t *testing.T) {
	w := NewWriter(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Fill the buffered channel without starting the flush loop.
	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: "create", ResourceKind: "pods"})
	}
	if len(w.entries) != bufferSize {
		t.Fatalf("buffer len = %d, want %d", len(w.entries), bufferSize)
	}

	// One more entry must be dropped, not block.
	w.Log(Entry{Action: "create", ResourceKind: "pods"})
	if len(w.entries) != bufferSize {
		t.Errorf("buffer len after overflow = %d, want still %d (entry dropped)", len(w.entries), bufferSize)
	}
}

func TestLogFromRequest_CapturesUserAgentAndIP(t *testing.T) {
	w := NewWriter(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := httptest.NewRequest(http.MethodPost, "/api/pods", nil)
	r.Header.Set("User-Agent", "kubefleet-ui/1.0")
	r.RemoteAddr = "192.0.2.2:4444"

	w.LogFromRequest(r, nil, "create", "pods", "my-pod", nil, true, nil)

	select {
	case entry := <-w.entries:
		if entry.UserAgent == nil || *entry.UserAgent != "kubefleet-ui/1.0" {
			t.Errorf("UserAgent = %v, want kubefleet-ui/1.0", entry.UserAgent)
		}
		if entry.IPAddress == nil || entry.IPAddress.String() != "192.0.2.2" {
			t.Errorf("IPAddress = %v, want 192.0.2.2", entry.IPAddress)
		}
		if entry.Action != "create" || entry.ResourceName != "my-pod" {
			t.Errorf("entry = %+v", entry)
		}
	default:
		t.Fatal("expected an entry to be enqueued")
	}
}
