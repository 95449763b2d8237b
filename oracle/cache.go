package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by a Cache when the key is absent.
var ErrCacheMiss = errors.New("oracle: cache miss")

// Cache is the key/value store behind Cached.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Cached serves the latest price from a cache for up to ttl. Cache failures
// are logged and fall through to the wrapped feed; only valid prices are
// cached.
type Cached struct {
	feed   PriceFeed
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

var _ PriceFeed = (*Cached)(nil)

// NewCached wraps feed with cache.
func NewCached(feed PriceFeed, cache Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{feed: feed, cache: cache, ttl: ttl, logger: logger}
}

// Address implements PriceFeed.
func (c *Cached) Address() string { return c.feed.Address() }

func (c *Cached) key() string { return "fundme:price:" + c.feed.Address() }

// LatestPrice implements PriceFeed.
func (c *Cached) LatestPrice(ctx context.Context) (Price, error) {
	raw, err := c.cache.Get(ctx, c.key())
	switch {
	case err == nil:
		var p Price
		if jerr := json.Unmarshal(raw, &p); jerr == nil && p.Validate() == nil {
			return p, nil
		}
		c.logger.Warn("discarding unreadable cached price", "feed", c.feed.Address())
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("price cache read failed", "feed", c.feed.Address(), "error", err)
	}

	p, err := c.feed.LatestPrice(ctx)
	if err != nil {
		return Price{}, err
	}
	if p.Validate() != nil {
		return p, nil
	}

	if data, jerr := json.Marshal(p); jerr == nil {
		if serr := c.cache.Set(ctx, c.key(), data, c.ttl); serr != nil {
			c.logger.Warn("price cache write failed", "feed", c.feed.Address(), "error", serr)
		}
	}
	return p, nil
}
