package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/termvec/pkg/redis"
)

var testConfig = config.RedisConfig{CacheTTL: time.Minute}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestSimilarityCachesUnorderedPair(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemStore(), testConfig, m)
	ctx := context.Background()
	calls := 0
	compute := func() (float64, error) { calls++; return 0.25, nil }

	v, cached, err := c.Similarity(ctx, 3, "a", "b", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 0.25, v)

	v, cached, err = c.Similarity(ctx, 3, "b", "a", compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 0.25, v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))

	_, cached, err = c.Similarity(ctx, 4, "a", "b", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, calls)
}

func TestMostSimilarCachesMatches(t *testing.T) {
	c := New(newMemStore(), testConfig, nil)
	ctx := context.Background()
	want := []corpus.Match{{DocID: "x", Score: 0.9}, {DocID: "y", Score: 0.1}}
	compute := func() ([]corpus.Match, error) { return want, nil }

	_, _, err := c.MostSimilar(ctx, 1, "q", 2, compute)
	require.NoError(t, err)
	got, cached, err := c.MostSimilar(ctx, 1, "q", 2, func() ([]corpus.Match, error) {
		return nil, errors.New("should not be called")
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, want, got)
}

func TestComputeErrorNotCached(t *testing.T) {
	c := New(newMemStore(), testConfig, nil)
	ctx := context.Background()
	boom := errors.New("boom")
	_, _, err := c.Similarity(ctx, 1, "a", "b", func() (float64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, cached, err := c.Similarity(ctx, 1, "a", "b", func() (float64, error) { return 0.5, nil })
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 0.5, v)
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c := New(newMemStore(), testConfig, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.Similarity(context.Background(), 1, "a", "b", func() (float64, error) {
				calls.Add(1)
				<-release
				return 1, nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, testConfig, nil)
	ctx := context.Background()
	_, _, err := c.Similarity(ctx, 1, "a", "b", func() (float64, error) { return 1, nil })
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	assert.Empty(t, store.data)
}

type downStore struct {
	gets atomic.Int32
}

func (d *downStore) Get(context.Context, string) (string, error) {
	d.gets.Add(1)
	return "", errors.New("connection refused")
}

func (d *downStore) Set(context.Context, string, any, time.Duration) error {
	return errors.New("connection refused")
}

func (d *downStore) FlushByPattern(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestBreakerBypassesDeadRedis(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := &downStore{}
	c := New(store, testConfig, m)
	ctx := context.Background()

	for i := range 10 {
		v, cached, err := c.Similarity(ctx, 1, "a", fmt.Sprint(i), func() (float64, error) { return 0.5, nil })
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, 0.5, v)
	}
	assert.False(t, c.Available())
	assert.Less(t, store.gets.Load(), int32(10))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-cache")))
}

func TestMissDoesNotTripBreaker(t *testing.T) {
	c := New(newMemStore(), testConfig, nil)
	for i := range 10 {
		_, _, err := c.Similarity(context.Background(), uint64(i), "a", "b", func() (float64, error) { return 1, nil })
		require.NoError(t, err)
	}
	assert.True(t, c.Available())
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("TV_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TV_TEST_REDIS_ADDR not set")
	}
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()

	c := New(client, config.RedisConfig{CacheTTL: time.Minute, OpTimeout: time.Second}, nil)
	ctx := context.Background()
	require.NoError(t, c.Invalidate(ctx))
	_, _, err = c.Similarity(ctx, 1, "a", "b", func() (float64, error) { return 0.75, nil })
	require.NoError(t, err)
	v, cached, err := c.Similarity(ctx, 1, "a", "b", func() (float64, error) { return 0, errors.New("miss") })
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 0.75, v)
}

func TestUnsettledAnswerIsNotCached(t *testing.T) {
	var settled atomic.Bool
	c := New(newMemStore(), testConfig, nil, WithSettled(func(gen uint64) bool {
		return gen == 7 && settled.Load()
	}))
	ctx := context.Background()
	calls := 0
	compute := func() (float64, error) { calls++; return 0.5, nil }

	v, cached, err := c.Similarity(ctx, 7, "a", "b", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 0.5, v)

	_, cached, err = c.Similarity(ctx, 7, "a", "b", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, calls)

	settled.Store(true)
	_, _, err = c.Similarity(ctx, 7, "a", "b", compute)
	require.NoError(t, err)
	_, cached, err = c.Similarity(ctx, 7, "a", "b", compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 3, calls)
}
