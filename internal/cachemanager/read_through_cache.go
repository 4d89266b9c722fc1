package cachemanager

import (
	"context"
	"time"

	"github.com/NaruseNia/progest/internal/log"
)

// ReadThroughCache fronts a loader with a cache. A hit slides the entry's
// expiry forward, so templates in active use stay cached; a miss calls the
// loader and stores the value. Load errors are never cached.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache  CacheManager[K, V]
	load   func(ctx context.Context, input I) (V, error)
	bypass bool
}

// NewReadThroughCache wraps cache with load. With bypass set every Get calls
// load and nothing is stored.
func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	load func(ctx context.Context, input I) (V, error),
	bypass bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{cache: cache, load: load, bypass: bypass}
}

// Get returns the value cached under key, loading it from input on a miss.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.bypass {
		return r.load(ctx, input)
	}
	if value, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return value, nil
	}

	value, err := r.load(ctx, input)
	if err != nil {
		return value, err
	}
	r.cache.Set(ctx, key, value, ttl)
	log.Debug(log.CatCache, "Cached", "key", key, "ttl", ttl)
	return value, nil
}

// Forget drops the values cached under keys.
func (r *ReadThroughCache[K, V, I]) Forget(ctx context.Context, keys ...K) error {
	return r.cache.Delete(ctx, keys...)
}

// Invalidate drops every cached value.
func (r *ReadThroughCache[K, V, I]) Invalidate(ctx context.Context) error {
	return r.cache.Flush(ctx)
}
