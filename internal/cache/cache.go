// Package cache memoises similarity answers in Redis. Keys carry the corpus
// generation, so an answer computed before a document was indexed is never
// served after it. Redis calls go through a circuit breaker; while it is
// open every query is computed directly.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/termvec/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
)

const breakerName = "redis-cache"

// errNotCached is a miss. The breaker counts it as a success.
var errNotCached = errors.New("not cached")

const keyPrefix = "termvec:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Option configures a SimilarityCache.
type Option func(*SimilarityCache)

// WithSettled makes the cache store a freshly computed answer only when
// settled(gen) holds after the computation, so values computed while a
// document was part-way through indexing are served once and never cached.
func WithSettled(settled func(gen uint64) bool) Option {
	return func(c *SimilarityCache) {
		c.settled = settled
	}
}

type SimilarityCache struct {
	client  Store
	ttl     time.Duration
	settled func(gen uint64) bool
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a cache over client using cfg.CacheTTL for entries and
// cfg.OpTimeout for each Redis call. m may be nil.
func New(client Store, cfg config.RedisConfig, m *metrics.Metrics, opts ...Option) *SimilarityCache {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		CallTimeout:      cfg.OpTimeout,
		IsFailure: func(ctx context.Context, err error) bool {
			return !errors.Is(err, errNotCached) && ctx.Err() == nil
		},
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
		m.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(resilience.StateClosed))
	}
	c := &SimilarityCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		breaker: resilience.NewCircuitBreaker(breakerName, cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "similarity-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Similarity returns the cached score for the unordered pair (a, b) at
// generation gen, calling compute on a miss.
func (c *SimilarityCache) Similarity(ctx context.Context, gen uint64, a, b string, compute func() (float64, error)) (float64, bool, error) {
	if b < a {
		a, b = b, a
	}
	return getOrCompute(ctx, c, gen, buildKey("sim", gen, a, b), compute)
}

// MostSimilar returns the cached neighbour list of docID at generation gen,
// calling compute on a miss.
func (c *SimilarityCache) MostSimilar(ctx context.Context, gen uint64, docID string, k int, compute func() ([]corpus.Match, error)) ([]corpus.Match, bool, error) {
	return getOrCompute(ctx, c, gen, buildKey("similar", gen, docID, fmt.Sprint(k)), compute)
}

// Invalidate drops every cached answer.
func (c *SimilarityCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func getOrCompute[T any](ctx context.Context, c *SimilarityCache, gen uint64, key string, compute func() (T, error)) (T, bool, error) {
	if v, ok := lookup[T](ctx, c, key); ok {
		return v, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		if c.settled != nil && !c.settled(gen) {
			c.logger.Debug("corpus changed during compute, not caching", "key", key)
			return v, nil
		}
		c.store(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

func lookup[T any](ctx context.Context, c *SimilarityCache, key string) (T, bool) {
	var (
		v    T
		data string
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return errNotCached
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, errNotCached) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return v, false
	}
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return v, false
	}
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return v, true
}

func (c *SimilarityCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Available reports whether Redis is currently being consulted.
func (c *SimilarityCache) Available() bool {
	return c.breaker.GetState() != resilience.StateOpen
}

func (c *SimilarityCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(kind string, gen uint64, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s%s:%d:%x", keyPrefix, kind, gen, h.Sum(nil)[:16])
}
