package weather

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache defaults applied by NewCachedSource.
const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = 10 * time.Minute
)

type cacheEntry struct {
	query   Query
	reading Reading
}

// CachedSource keeps recent readings per query for a TTL and coalesces
// concurrent fetches of the same query into one upstream call. Failures are
// never cached.
type CachedSource struct {
	src    Source
	cache  *expirable.LRU[string, cacheEntry]
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedSource wraps src. Non-positive size or ttl select the defaults.
func NewCachedSource(src Source, size int, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{
		src:    src,
		cache:  expirable.NewLRU[string, cacheEntry](size, nil, ttl),
		logger: logger,
	}
}

// Fetch implements Source.
func (c *CachedSource) Fetch(ctx context.Context, q Query) (Reading, error) {
	key := q.Key()
	if e, ok := c.cache.Get(key); ok {
		return e.reading, nil
	}
	v, err, shared := c.group.Do(key, func() (any, error) {
		r, err := c.src.Fetch(ctx, q)
		if err != nil {
			return Reading{}, err
		}
		c.cache.Add(key, cacheEntry{query: q, reading: r})
		return r, nil
	})
	if err != nil {
		return Reading{}, err
	}
	if shared {
		c.logger.Debug("weather fetch coalesced", zap.String("query", key))
	}
	return v.(Reading), nil
}

// Invalidate drops the cached reading for q.
func (c *CachedSource) Invalidate(q Query) {
	c.cache.Remove(q.Key())
}

// Len reports how many readings are cached.
func (c *CachedSource) Len() int { return c.cache.Len() }

// Refresh refetches every cached query. Entries whose refetch fails are
// dropped; the number refreshed is returned with the last error seen.
func (c *CachedSource) Refresh(ctx context.Context) (int, error) {
	var (
		refreshed int
		lastErr   error
	)
	for _, e := range c.cache.Values() {
		key := e.query.Key()
		r, err := c.src.Fetch(ctx, e.query)
		if err != nil {
			c.cache.Remove(key)
			lastErr = err
			c.logger.Warn("weather refresh failed", zap.String("query", key), zap.Error(err))
			continue
		}
		c.cache.Add(key, cacheEntry{query: e.query, reading: r})
		refreshed++
	}
	return refreshed, lastErr
}
