// Package cachemanager provides typed caches for loaded templates and other
// values that are expensive to rebuild.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed key/value cache. A ttl of zero means the cache's
// default expiration.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	// GetWithRefresh returns the value and, on a hit, resets its expiry to ttl.
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
