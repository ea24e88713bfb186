package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/qabot/internal/model"
	"github.com/kart-io/qabot/internal/pkg/textutil"
	"github.com/kart-io/qabot/pkg/utils/json"
)

// QueryCacheConfig 查询缓存配置。
type QueryCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// DefaultQueryCacheConfig 返回默认缓存配置。
func DefaultQueryCacheConfig() *QueryCacheConfig {
	return &QueryCacheConfig{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "qabot:query:",
	}
}

// QueryCache 基于 Redis 的查询结果缓存。缓存的是仅依赖于查询文本和当前
// 索引快照的部分（答案、来源、置信度）；会话 ID、时间戳、延迟每次重新生成。
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache 创建查询缓存实例。
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = DefaultQueryCacheConfig()
	}
	return &QueryCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey 基于规范化后的查询文本生成缓存键。
func (c *QueryCache) cacheKey(query string) string {
	return c.config.KeyPrefix + textutil.SHA256Hex(textutil.NormalizeWhitespace(query))
}

// Get 从缓存获取查询结果，未命中时返回 (nil, nil)。
func (c *QueryCache) Get(ctx context.Context, query string) (*model.QueryResult, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, nil
	}

	key := c.cacheKey(query)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached result, dropping entry", "error", err.Error(), "key", key)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Debugw("query cache hit", "key", key)
	return &result, nil
}

// Set 将查询结果写入缓存。
func (c *QueryCache) Set(ctx context.Context, query string, result *model.QueryResult) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	key := c.cacheKey(query)

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal result for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set cache", "error", err.Error(), "key", key)
		return err
	}
	return nil
}

// Clear 清除所有查询缓存。索引内容变化后调用，避免返回过期答案。
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warnw("error during cache scan", "error", err.Error())
		return err
	}

	logger.Infow("cleared query cache", "deleted_count", deleted)
	return nil
}

// Stats 返回缓存统计信息。
func (c *QueryCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]interface{}{"enabled": false}, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	keys := 0
	for iter.Next(ctx) {
		keys++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"enabled":    true,
		"key_count":  keys,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}

// 确保 QueryCache 实现了 QueryCacher 接口。
var _ QueryCacher = (*QueryCache)(nil)
