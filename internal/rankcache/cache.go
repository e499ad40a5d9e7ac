// Package rankcache caches ad-hoc ranking results in Redis. Cache keys
// include the instance count the ranking was computed at, so entries from an
// older training state can never be served after more training has happened;
// stale versions simply age out via TTL.
package rankcache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/embeddinglab/wordvec-lab/internal/query"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
	"github.com/embeddinglab/wordvec-lab/pkg/metrics"
	pkgredis "github.com/embeddinglab/wordvec-lab/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "ranking:"

// Store is the subset of the Redis client the cache depends on. pkg/redis
// Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Cache struct {
	client  Store
	cfg     config.RedisConfig
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client Store, cfg config.RedisConfig, m *metrics.Metrics) *Cache {
	return &Cache{
		client:  client,
		cfg:     cfg,
		logger:  slog.Default().With("component", "rank-cache"),
		metrics: m,
	}
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *Cache) Get(ctx context.Context, queryKey string, version int) (*query.Ranking, bool) {
	key := c.buildKey(queryKey, version)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			c.recordMiss()
			return nil, false
		}
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	var ranking query.Ranking
	if err := json.Unmarshal([]byte(data), &ranking); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	c.logger.Debug("cache hit", "query", queryKey, "version", version)
	return &ranking, true
}

func (c *Cache) Set(ctx context.Context, queryKey string, version int, ranking *query.Ranking) {
	key := c.buildKey(queryKey, version)
	data, err := json.Marshal(ranking)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached ranking for (queryKey, version) or computes
// and stores it, collapsing concurrent computations of the same key into one.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	queryKey string,
	version int,
	computeFn func() (*query.Ranking, error),
) (*query.Ranking, bool, error) {
	if ranking, ok := c.Get(ctx, queryKey, version); ok {
		return ranking, true, nil
	}
	key := c.buildKey(queryKey, version)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if ranking, ok := c.Get(ctx, queryKey, version); ok {
			return ranking, nil
		}
		ranking, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, queryKey, version, ranking)
		return ranking, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*query.Ranking), false, nil
}

// Invalidate drops every cached ranking, e.g. after the session is
// re-initialized with a new corpus.
func (c *Cache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + "*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating rank cache: %w", err)
	}
	c.logger.Info("rank cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) buildKey(queryKey string, version int) string {
	raw := fmt.Sprintf("%s@%d", queryKey, version)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
