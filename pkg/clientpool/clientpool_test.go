package clientpool

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/wisbric/kubefleet/internal/apierr"
	"github.com/wisbric/kubefleet/internal/db"
)

func testCluster(id int64) db.Cluster {
	token := "test-token"
	return db.Cluster{
		ID:          id,
		Endpoint:    "https://example.invalid:6443",
		AuthMode:    db.AuthModeBearerToken,
		BearerToken: &token,
	}
}

func TestBorrowReturn_ReusesEntry(t *testing.T) {
	p := New(Config{MaxConnectionsPerCluster: 2, HealthCheckInterval: time.Hour})
	ctx := context.Background()
	cluster := testCluster(1)

	h1, err := p.Borrow(ctx, cluster)
	if err != nil {
		t.Fatalf("first borrow: %v", err)
	}
	p.Return(cluster.ID, h1)

	h2, err := p.Borrow(ctx, cluster)
	if err != nil {
		t.Fatalf("second borrow: %v", err)
	}
	if h1.Typed != h2.Typed {
		t.Error("returned handle should be reused, not rebuilt")
	}

	stats := p.Stats()
	if stats.PerCluster[cluster.ID] != 1 {
		t.Errorf("per-cluster entry count = %d, want 1", stats.PerCluster[cluster.ID])
	}
}

func TestBorrow_ExhaustsPool(t *testing.T) {
	p := New(Config{MaxConnectionsPerCluster: 1, HealthCheckInterval: time.Hour})
	ctx := context.Background()
	cluster := testCluster(2)

	if _, err := p.Borrow(ctx, cluster); err != nil {
		t.Fatalf("first borrow: %v", err)
	}

	_, err := p.Borrow(ctx, cluster)
	if err == nil {
		t.Fatal("second borrow should fail, pool at capacity")
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindPoolExhausted {
		t.Errorf("expected PoolExhausted, got %v", err)
	}
}

func TestEvictExpiredLocked_DropsIdleEntries(t *testing.T) {
	p := New(Config{MaxConnectionsPerCluster: 2, ConnectionTimeout: time.Millisecond, HealthCheckInterval: time.Hour})
	ctx := context.Background()
	cluster := testCluster(3)

	h, err := p.Borrow(ctx, cluster)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	p.Return(cluster.ID, h)

	time.Sleep(5 * time.Millisecond)
	p.Sweep()

	stats := p.Stats()
	if stats.PerCluster[cluster.ID] != 0 {
		t.Errorf("idle entry should have been evicted, got %d entries", stats.PerCluster[cluster.ID])
	}
}

func TestEvictExpiredLocked_KeepsBorrowedEntries(t *testing.T) {
	p := New(Config{MaxConnectionsPerCluster: 2, ConnectionTimeout: time.Millisecond, HealthCheckInterval: time.Hour})
	ctx := context.Background()
	cluster := testCluster(4)

	if _, err := p.Borrow(ctx, cluster); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	p.Sweep()

	stats := p.Stats()
	if stats.PerCluster[cluster.ID] != 1 {
		t.Error("a borrowed (in-use) entry must never be evicted out from under its caller")
	}
}

func TestEvictCluster_RemovesTempFiles(t *testing.T) {
	p := New(Config{MaxConnectionsPerCluster: 2, HealthCheckInterval: time.Hour})
	ctx := context.Background()

	token := "test-token"
	ca := "-----BEGIN CERTIFICATE-----\n" +
		"MIIBjzCCATWgAwIBAgIUPiWnnEqs6bSacCLL9WcseudIMXowCgYIKoZIzj0EAwIw\n" +
		"HDEaMBgGA1UEAwwRa3ViZWZsZWV0LXRlc3QtY2EwIBcNMjYxMDMxMTMzODQyWhgP\n" +
		"MjEyNjEwMDcxMzM4NDJaMBwxGjAYBgNVBAMMEWt1YmVmbGVldC10ZXN0LWNhMFkw\n" +
		"EwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAErglssV615ghM+DwI4vuS+ybI/LdIiXKw\n" +
		"H3i6WKQGrZHDaLytRmEF5OO7BF31uZSKoiPw1cHvEC+aJZ6244I65aNTMFEwHQYD\n" +
		"VR0OBBYEFAg8ZuIZ4cWtJVf6vt37TfC4TEvxMB8GA1UdIwQYMBaAFAg8ZuIZ4cWt\n" +
		"JVf6vt37TfC4TEvxMA8GA1UdEwEB/wQFMAMBAf8wCgYIKoZIzj0EAwIDSAAwRQIh\n" +
		"AM4ygmzjWhqm6mTgZMFRP03/N2RosXYGe+6OFxRX2ZNDAiAj6Docz/PoRob20HJz\n" +
		"nAPya7NDIIYAazqdoYPZpjnG3g==\n" +
		"-----END CERTIFICATE-----\n"
	cluster := db.Cluster{
		ID:          5,
		Endpoint:    "https://example.invalid:6443",
		AuthMode:    db.AuthModeBearerToken,
		BearerToken: &token,
		CAPem:       &ca,
	}

	if _, err := p.Borrow(ctx, cluster); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	p.mu.Lock()
	var tempFile string
	for _, e := range p.entries[cluster.ID] {
		if len(e.tempFiles) > 0 {
			tempFile = e.tempFiles[0]
		}
	}
	p.mu.Unlock()

	if tempFile == "" {
		t.Fatal("expected a CA temp file to have been written")
	}
	if _, err := os.Stat(tempFile); err != nil {
		t.Fatalf("temp file should exist before eviction: %v", err)
	}

	p.EvictCluster(cluster.ID)

	if _, err := os.Stat(tempFile); !os.IsNotExist(err) {
		t.Errorf("temp file should be removed after EvictCluster, stat err = %v", err)
	}
	if stats := p.Stats(); stats.PerCluster[cluster.ID] != 0 {
		t.Error("cluster should have no entries left after EvictCluster")
	}
}

func TestBuildClient_UnknownAuthMode(t *testing.T) {
	cluster := db.Cluster{ID: 6, AuthMode: "bogus"}
	_, _, err := buildClient(cluster)
	if err == nil {
		t.Fatal("expected an error for an unknown auth mode")
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.MaxConnectionsPerCluster != 10 {
		t.Errorf("default MaxConnectionsPerCluster = %d, want 10", cfg.MaxConnectionsPerCluster)
	}
	if cfg.ConnectionTimeout != 10*time.Minute {
		t.Errorf("default ConnectionTimeout = %v, want 10m", cfg.ConnectionTimeout)
	}
	if cfg.HealthCheckInterval != 60*time.Second {
		t.Errorf("default HealthCheckInterval = %v, want 60s", cfg.HealthCheckInterval)
	}
}
