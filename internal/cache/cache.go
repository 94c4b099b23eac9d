// Package cache is the process-local cache handle every agent carries,
// replacing the original's Redis-backed singleton
// (original_source/main/lib/idds/agents/common/cache/redis.py's
// RedisCache, constructed once via get_redis_cache() and stashed on
// baseagent.Base as self.cache). A single shared Postgres-backed
// deployment doesn't need a separate Redis process for this: an
// in-process, size-and-TTL-bounded LRU does the same job for data that's
// safe to lose and cheap to refetch, at the cost of not being shared
// across agent processes — acceptable here since the one thing this
// module caches (external collection metadata) is re-fetched lazily
// anyway when absent.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a generic, fixed-size, TTL-expiring cache.
type Cache[K comparable, V any] struct {
	inner *lru.LRU[K, V]
}

// New returns a Cache holding at most size entries, each evicted ttl after
// being set. A non-positive size is normalized to 1 so a misconfigured
// cache_size still caches something rather than panicking.
func New[K comparable, V any](size int, ttl time.Duration) *Cache[K, V] {
	if size <= 0 {
		size = 1
	}
	return &Cache[K, V]{inner: lru.NewLRU[K, V](size, nil, ttl)}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

func (c *Cache[K, V]) Add(key K, value V) {
	c.inner.Add(key, value)
}
