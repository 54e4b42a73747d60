package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 缓存服务
type Cache struct {
	client *Client
	group  singleflight.Group
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{
		client: client,
	}
}

// Get 获取缓存值，未命中返回 redis.Nil
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, err
		}
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return val, nil
}

// Set 以 JSON 序列化写入缓存
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	bytes, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.rdb.Set(ctx, key, bytes, ttl).Err()
}

// GetOrLoadSafe 读穿缓存，singleflight 合并同 key 的并发加载。
// Redis 读取失败（非未命中）时直接返回错误，不调用 loader。
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoadSafe",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	}

	if !IsNil(err) {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		// 再次检查缓存（可能已被其他请求填充）
		if val, err := c.client.rdb.Get(ctx, key).Bytes(); err == nil {
			return val, nil
		}

		data, err := loader()
		if err != nil {
			return nil, err
		}

		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}

		// 缓存写入失败不影响返回结果
		if err := c.client.rdb.Set(ctx, key, bytes, ttl).Err(); err != nil {
			span.RecordError(err)
		}

		return bytes, nil
	})

	span.SetAttributes(attribute.Bool("cache.shared", shared))

	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return result.([]byte), nil
}

// Delete 删除缓存
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Delete",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	return c.client.rdb.Del(ctx, keys...).Err()
}

// InvalidatePattern 按模式使缓存失效，返回删除数量
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidatePattern",
		trace.WithAttributes(attribute.String("cache.pattern", pattern)))
	defer span.End()

	iter := c.client.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("cache.invalidated_count", len(keys)))
	if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return len(keys), nil
}

// InvalidateEmbeddings 清除某个模型的查询向量缓存；model 为空时清除全部
func (c *Cache) InvalidateEmbeddings(ctx context.Context, model string) (int, error) {
	return c.InvalidatePattern(ctx, EmbeddingKeyPattern(model))
}

// EmbeddingKeyPattern 查询向量缓存键的匹配模式
func EmbeddingKeyPattern(model string) string {
	if model == "" {
		return "emb:*"
	}
	return fmt.Sprintf("emb:%s:*", model)
}

// EmbeddingModelKey 记录向量化服务当前模型与维度的键
func EmbeddingModelKey(label string) string {
	return fmt.Sprintf("emb_model:%s", label)
}

// TrackEmbeddingModel 记录 label 当前的模型与维度。
// 与上次记录不同时清除旧模型的查询向量缓存，返回清除数量
func (c *Cache) TrackEmbeddingModel(ctx context.Context, label, model string, dim int) (int, error) {
	current := fmt.Sprintf("%s:%d", model, dim)
	prev, err := c.client.rdb.GetSet(ctx, EmbeddingModelKey(label), current).Result()
	if err != nil && !IsNil(err) {
		return 0, err
	}
	if prev == "" || prev == current {
		return 0, nil
	}
	return c.InvalidateEmbeddings(ctx, modelFromMarker(prev))
}

// modelFromMarker 从 "model:dim" 取出模型名，模型名本身可以包含冒号
func modelFromMarker(marker string) string {
	i := strings.LastIndex(marker, ":")
	if i <= 0 {
		return marker
	}
	return marker[:i]
}
