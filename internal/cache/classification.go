package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/planning"
)

// =============================================================================
// 💾 分类缓存
// =============================================================================

const keyPrefix = "queryflow:classification:"

// ClassificationCache 缓存查询分类结果并合并并发的相同分类。
// nil 实例上的所有方法安全退化为直通, 服务未配置缓存时持 nil 即可。
type ClassificationCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
	mu     sync.RWMutex
	closed bool
}

// NewClassificationCache 连接 Redis 并构建分类缓存。
// ttl 必须为正, 为 0 时调用方应禁用缓存而不是构建它。
func NewClassificationCache(cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*ClassificationCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("classification cache ttl must be positive, got %s", ttl)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := &ClassificationCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "classification_cache")),
	}

	logger.Info("classification cache ready",
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", ttl),
	)
	return c, nil
}

// Analyze 先查缓存, 未命中时执行 classify 并回填。并发的相同查询
// 通过 singleflight 合并为一次分类, 返回值在调用方之间共享, 不可修改。
// 第二个返回值报告结果是否来自缓存。
func (c *ClassificationCache) Analyze(ctx context.Context, query, schemaHint string, classify func(context.Context) *planning.QueryAnalysis) (*planning.QueryAnalysis, bool) {
	if c == nil {
		return classify(ctx), false
	}

	key := cacheKey(query, schemaHint)
	type outcome struct {
		analysis *planning.QueryAnalysis
		hit      bool
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		if analysis, ok := c.lookup(ctx, key); ok {
			return outcome{analysis: analysis, hit: true}, nil
		}
		analysis := classify(ctx)
		c.store(ctx, key, analysis)
		return outcome{analysis: analysis, hit: false}, nil
	})

	result := v.(outcome)
	return result.analysis, result.hit
}

// Lookup 查询缓存的分类结果。
func (c *ClassificationCache) Lookup(ctx context.Context, query, schemaHint string) (*planning.QueryAnalysis, bool) {
	if c == nil {
		return nil, false
	}
	return c.lookup(ctx, cacheKey(query, schemaHint))
}

func (c *ClassificationCache) lookup(ctx context.Context, key string) (*planning.QueryAnalysis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, false
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("classification cache read failed", zap.Error(err))
		return nil, false
	}

	var analysis planning.QueryAnalysis
	if err := json.Unmarshal([]byte(val), &analysis); err != nil {
		// 载荷损坏, 清掉避免反复解析失败
		c.logger.Warn("classification cache payload corrupt", zap.Error(err))
		c.redis.Del(ctx, key)
		return nil, false
	}
	return &analysis, true
}

// Store 缓存一次分类结果。降级结果不入缓存。
func (c *ClassificationCache) Store(ctx context.Context, query, schemaHint string, analysis *planning.QueryAnalysis) {
	if c == nil {
		return
	}
	c.store(ctx, cacheKey(query, schemaHint), analysis)
}

func (c *ClassificationCache) store(ctx context.Context, key string, analysis *planning.QueryAnalysis) {
	if analysis == nil || analysis.Degraded() {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	data, err := json.Marshal(analysis)
	if err != nil {
		c.logger.Warn("classification cache encode failed", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("classification cache write failed", zap.Error(err))
	}
}

// Invalidate 删除指定查询的缓存项。
func (c *ClassificationCache) Invalidate(ctx context.Context, query, schemaHint string) error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	return c.redis.Del(ctx, cacheKey(query, schemaHint)).Err()
}

// Ping 检查 Redis 连接。
func (c *ClassificationCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("classification cache is closed")
	}
	return c.redis.Ping(ctx).Err()
}

// Close 关闭底层 Redis 连接。
func (c *ClassificationCache) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("closing classification cache")
	return c.redis.Close()
}

// cacheKey 对规范化查询与 schema 提示取哈希。大小写与多余空白
// 不影响分类意图, 折叠后可提高命中率。
func cacheKey(query, schemaHint string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(schemaHint + "\x00" + normalized))
	return keyPrefix + hex.EncodeToString(sum[:])
}
