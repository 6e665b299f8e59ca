package cache

import (
	"context"
	"testing"
)

func TestResourceKey(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		clusterID int64
		namespace string
		want      string
	}{
		{"namespaced", "pods", 1, "default", "k8s:pods:cluster:1:ns:default"},
		{"cluster-wide", "nodes", 2, "", "k8s:nodes:cluster:2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResourceKey(tt.kind, tt.clusterID, tt.namespace); got != tt.want {
				t.Errorf("ResourceKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClusterWideKey(t *testing.T) {
	if got := ClusterWideKey("deployments", 7); got != "k8s:deployments:cluster:7" {
		t.Errorf("ClusterWideKey() = %q", got)
	}
}

func TestNewRedisCache_NilClientReturnsNoop(t *testing.T) {
	c := NewRedisCache(nil)
	if _, ok := c.(NoopCache); !ok {
		t.Errorf("NewRedisCache(nil) should return NoopCache, got %T", c)
	}
}

func TestNoopCache_NeverErrorsOrHits(t *testing.T) {
	var c Cache = NoopCache{}
	ctx := context.Background()

	hit, err := c.Get(ctx, "any", &struct{}{})
	if hit || err != nil {
		t.Errorf("Get() = (%v, %v), want (false, nil)", hit, err)
	}
	if err := c.Set(ctx, "any", "value", 0); err != nil {
		t.Errorf("Set() = %v, want nil", err)
	}
	if err := c.Delete(ctx, "any"); err != nil {
		t.Errorf("Delete() = %v, want nil", err)
	}
	if err := c.DeletePattern(ctx, "any*"); err != nil {
		t.Errorf("DeletePattern() = %v, want nil", err)
	}
	exists, err := c.Exists(ctx, "any")
	if exists || err != nil {
		t.Errorf("Exists() = (%v, %v), want (false, nil)", exists, err)
	}
}
