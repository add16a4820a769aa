// Package cache memoises rankings in Redis so repeated experiment runs over
// the same collection and parameters skip scoring. Keys cover everything that
// can change a ranking; a cache failure never changes results, it only falls
// back to computing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/redis"
)

const keyPrefix = "ranking:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type RankingCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *RankingCache {
	return &RankingCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("ranking-cache"),
	}
}

func (c *RankingCache) Get(ctx context.Context, req executor.CacheRequest) ([]executor.RankedResult, bool) {
	key := BuildKey(req)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var results []executor.RankedResult
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	return results, true
}

func (c *RankingCache) Set(ctx context.Context, req executor.CacheRequest, results []executor.RankedResult) {
	key := BuildKey(req)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached ranking for req, or runs compute once per
// key even when many goroutines ask concurrently.
func (c *RankingCache) GetOrCompute(
	ctx context.Context,
	req executor.CacheRequest,
	compute func() ([]executor.RankedResult, error),
) ([]executor.RankedResult, bool, error) {
	if results, ok := c.Get(ctx, req); ok {
		return results, true, nil
	}
	key := BuildKey(req)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, req, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]executor.RankedResult), false, nil
}

// Invalidate drops every cached ranking.
func (c *RankingCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating ranking cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *RankingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *RankingCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *RankingCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the index fingerprint, model, parameters, cut-off and the
// analysed query terms. Terms are hashed in query order, repeats included.
func BuildKey(req executor.CacheRequest) string {
	p := req.Params
	raw := fmt.Sprintf("%s|%s|k1=%g|b=%g|mu=%g|cos=%t|raw=%t|top=%d|%s",
		req.Fingerprint, req.Model, p.K1, p.B, p.Mu, p.CosineNormalize, p.RawIDF,
		req.TopK, strings.Join(req.Terms, "\x00"))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
