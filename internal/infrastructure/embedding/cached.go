package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"chem-rag-api/pkg/logger"
	"chem-rag-api/pkg/metrics"
)

// ReadThroughCache 读穿缓存，由 redis.Cache 实现
type ReadThroughCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
}

// CachedProvider 为单条文本（查询）向量化增加读穿缓存，批量请求直接透传
type CachedProvider struct {
	inner Provider
	cache ReadThroughCache
	ttl   time.Duration
}

// NewCachedProvider 包装 Provider；cache 为 nil 或 ttl<=0 时返回原 Provider
func NewCachedProvider(inner Provider, cache ReadThroughCache, ttl time.Duration) Provider {
	if cache == nil || ttl <= 0 {
		return inner
	}
	return &CachedProvider{inner: inner, cache: cache, ttl: ttl}
}

// Embed 实现 Provider
func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return p.inner.Embed(ctx, texts)
	}

	key := p.cacheKey(texts[0])
	loaded := false
	raw, err := p.cache.GetOrLoadSafe(ctx, key, p.ttl, func() (interface{}, error) {
		loaded = true
		vecs, err := p.inner.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	})
	if err != nil {
		if loaded {
			// 模型本身失败
			return nil, err
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "embedding cache unavailable, calling provider directly", "error", err)
		return p.inner.Embed(ctx, texts)
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	if len(vec) != p.inner.Dimensions() {
		return nil, fmt.Errorf("%w: cached %d, want %d", ErrDimensionMismatch, len(vec), p.inner.Dimensions())
	}

	if loaded {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	}
	return [][]float32{vec}, nil
}

// ModelName 实现 Provider
func (p *CachedProvider) ModelName() string { return p.inner.ModelName() }

// Dimensions 实现 Provider
func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }

func (p *CachedProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%d:%s", p.inner.ModelName(), p.inner.Dimensions(), hex.EncodeToString(sum[:]))
}
