package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/planning"
)

// =============================================================================
// 🧪 分类缓存测试
// =============================================================================

func setupTestCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *ClassificationCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := config.DefaultRedisConfig()
	cfg.Addr = mr.Addr()

	cache, err := NewClassificationCache(cfg, ttl, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cache.Close()
		mr.Close()
	})
	return mr, cache
}

func parsedAnalysis(query, intent string) *planning.QueryAnalysis {
	return &planning.QueryAnalysis{
		Query:           query,
		PrimaryIntent:   intent,
		DetectedIntents: []string{intent},
		ComplexityScore: 0.4,
		Source:          planning.SourceParsed,
	}
}

func TestNewClassificationCache(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	assert.NotNil(t, cache)
	assert.NoError(t, cache.Ping(context.Background()))
}

func TestNewClassificationCache_RequiresTTL(t *testing.T) {
	_, err := NewClassificationCache(config.DefaultRedisConfig(), 0, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ttl must be positive")
}

func TestClassificationCache_StoreAndLookup(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	cache.Store(ctx, "show revenue by region", "orders(region, revenue)", parsedAnalysis("show revenue by region", planning.IntentSQLQuery))

	got, ok := cache.Lookup(ctx, "show revenue by region", "orders(region, revenue)")
	require.True(t, ok)
	assert.Equal(t, planning.IntentSQLQuery, got.PrimaryIntent)
	assert.Equal(t, planning.SourceParsed, got.Source)

	// schema 提示参与键, 不同提示互不命中
	_, ok = cache.Lookup(ctx, "show revenue by region", "sales(city, total)")
	assert.False(t, ok)
}

func TestClassificationCache_NormalizesQueryKey(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	cache.Store(ctx, "show   revenue\tby region", "", parsedAnalysis("show revenue by region", planning.IntentSQLQuery))

	_, ok := cache.Lookup(ctx, "SHOW revenue BY region", "")
	assert.True(t, ok)
}

func TestClassificationCache_SkipsDegraded(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	degraded := parsedAnalysis("anything", planning.DefaultIntent)
	degraded.Source = planning.SourceFallback
	cache.Store(ctx, "anything", "", degraded)

	_, ok := cache.Lookup(ctx, "anything", "")
	assert.False(t, ok)
}

func TestClassificationCache_TTLExpiry(t *testing.T) {
	mr, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	cache.Store(ctx, "trend of sales", "", parsedAnalysis("trend of sales", planning.IntentVisualization))
	_, ok := cache.Lookup(ctx, "trend of sales", "")
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok = cache.Lookup(ctx, "trend of sales", "")
	assert.False(t, ok)
}

func TestClassificationCache_Analyze(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	classify := func(context.Context) *planning.QueryAnalysis {
		calls.Add(1)
		return parsedAnalysis("total orders", planning.IntentSQLQuery)
	}

	first, cached := cache.Analyze(ctx, "total orders", "", classify)
	require.NotNil(t, first)
	assert.False(t, cached)
	assert.Equal(t, int32(1), calls.Load())

	second, cached := cache.Analyze(ctx, "total orders", "", classify)
	require.NotNil(t, second)
	assert.True(t, cached)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.PrimaryIntent, second.PrimaryIntent)
}

func TestClassificationCache_AnalyzeMergesConcurrent(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	started := make(chan struct{})
	gate := make(chan struct{})
	classify := func(context.Context) *planning.QueryAnalysis {
		calls.Add(1)
		close(started)
		<-gate
		return parsedAnalysis("concurrent query", planning.IntentSQLQuery)
	}

	results := make([]*planning.QueryAnalysis, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = cache.Analyze(ctx, "concurrent query", "", classify)
	}()
	<-started

	// 首个调用已阻塞在 gate 上, 后续并发者应并入同一次分类
	for i := 1; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.Analyze(ctx, "concurrent query", "", classify)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, planning.IntentSQLQuery, r.PrimaryIntent)
	}
}

func TestClassificationCache_DegradedNotCachedByAnalyze(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	classify := func(context.Context) *planning.QueryAnalysis {
		calls.Add(1)
		fallback := parsedAnalysis("flaky", planning.DefaultIntent)
		fallback.Source = planning.SourceFallback
		return fallback
	}

	_, cached := cache.Analyze(ctx, "flaky", "", classify)
	assert.False(t, cached)

	// 降级结果未入缓存, 第二次仍会分类
	_, cached = cache.Analyze(ctx, "flaky", "", classify)
	assert.False(t, cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassificationCache_CorruptPayloadEvicted(t *testing.T) {
	mr, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	key := cacheKey("broken entry", "")
	require.NoError(t, mr.Set(key, "{not valid json"))

	_, ok := cache.Lookup(ctx, "broken entry", "")
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))
}

func TestClassificationCache_Invalidate(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	cache.Store(ctx, "stale query", "", parsedAnalysis("stale query", planning.IntentSQLQuery))
	require.NoError(t, cache.Invalidate(ctx, "stale query", ""))

	_, ok := cache.Lookup(ctx, "stale query", "")
	assert.False(t, ok)
}

func TestClassificationCache_RedisDownDegradesToMiss(t *testing.T) {
	mr, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	mr.Close()

	var calls atomic.Int32
	classify := func(context.Context) *planning.QueryAnalysis {
		calls.Add(1)
		return parsedAnalysis("resilient", planning.IntentSQLQuery)
	}

	analysis, cached := cache.Analyze(ctx, "resilient", "", classify)
	require.NotNil(t, analysis)
	assert.False(t, cached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassificationCache_NilSafe(t *testing.T) {
	var cache *ClassificationCache
	ctx := context.Background()

	var calls atomic.Int32
	analysis, cached := cache.Analyze(ctx, "anything", "", func(context.Context) *planning.QueryAnalysis {
		calls.Add(1)
		return parsedAnalysis("anything", planning.DefaultIntent)
	})
	require.NotNil(t, analysis)
	assert.False(t, cached)
	assert.Equal(t, int32(1), calls.Load())

	_, ok := cache.Lookup(ctx, "anything", "")
	assert.False(t, ok)
	cache.Store(ctx, "anything", "", parsedAnalysis("anything", planning.DefaultIntent))
	assert.NoError(t, cache.Invalidate(ctx, "anything", ""))
	assert.NoError(t, cache.Ping(ctx))
	assert.NoError(t, cache.Close())
}

func TestClassificationCache_Closed(t *testing.T) {
	_, cache := setupTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())

	_, ok := cache.Lookup(ctx, "anything", "")
	assert.False(t, ok)
	cache.Store(ctx, "anything", "", parsedAnalysis("anything", planning.DefaultIntent))
	assert.Error(t, cache.Ping(ctx))
}
