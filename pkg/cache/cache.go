// Package cache implements the Cache Layer: a best-effort key/value store
// in front of the Read Facade, invalidated on every successful mutation.
// The facade treats it as best-effort — a cache outage degrades to
// uncached reads rather than failing the request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the interface the Read and Mutation Facades depend on.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ResourceKey builds the cache key for one kind within a cluster/namespace,
// in the `k8s:<kind>:cluster:<id>:ns:<ns>` shape referenced by P5.
func ResourceKey(kind string, clusterID int64, namespace string) string {
	if namespace == "" {
		return ClusterWideKey(kind, clusterID)
	}
	return fmt.Sprintf("k8s:%s:cluster:%d:ns:%s", kind, clusterID, namespace)
}

// ClusterWideKey builds the cluster-scoped (all-namespace) variant of a
// resource cache key.
func ClusterWideKey(kind string, clusterID int64) string {
	return fmt.Sprintf("k8s:%s:cluster:%d", kind, clusterID)
}

// RedisCache is the production Cache, backed by go-redis. DeletePattern
// uses SCAN+UNLINK rather than KEYS so invalidation never blocks the
// shared Redis instance on a large keyspace.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps an existing client. rdb may be nil, in which case
// NewRedisCache returns a NoopCache instead so callers never need a nil
// check of their own.
func NewRedisCache(rdb *redis.Client) Cache {
	if rdb == nil {
		return NoopCache{}
	}
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// DeletePattern removes every key matching pattern (glob syntax), scanning
// in bounded batches so the call never issues a blocking KEYS command.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Unlink(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NoopCache satisfies Cache while doing nothing; used when REDIS_URL is
// unset so the rest of the codebase never special-cases a missing cache.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, any) (bool, error)    { return false, nil }
func (NoopCache) Set(context.Context, string, any, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, string) error              { return nil }
func (NoopCache) DeletePattern(context.Context, string) error       { return nil }
func (NoopCache) Exists(context.Context, string) (bool, error)      { return false, nil }
