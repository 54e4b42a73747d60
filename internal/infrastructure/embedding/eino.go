package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"
	"golang.org/x/time/rate"

	"chem-rag-api/internal/config"
)

// EinoProvider 通过 Eino OpenAI 适配器调用远程 Embedding API，客户端限速
type EinoProvider struct {
	embedder   einoembedding.Embedder
	model      string
	dimensions int
	limiter    *rate.Limiter
}

// NewEinoProvider 创建远程 Embedding Provider
func NewEinoProvider(ctx context.Context, cfg *config.PrimaryEmbeddingConfig) (*EinoProvider, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("primary embedding is not configured")
	}

	embCfg := &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.Dimension > 0 {
		dim := cfg.Dimension
		embCfg.Dimensions = &dim
	}
	embedder, err := openai.NewEmbedder(ctx, embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return NewEinoProviderFrom(embedder, cfg.Model, cfg.Dimension, cfg.RequestsPerSecond), nil
}

// NewEinoProviderFrom 包装已有的 Eino Embedder
func NewEinoProviderFrom(embedder einoembedding.Embedder, model string, dimensions int, rps float64) *EinoProvider {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &EinoProvider{
		embedder:   embedder,
		model:      model,
		dimensions: dimensions,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Embed 实现 Provider，将 float64 结果转换为 float32
func (p *EinoProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	vecs, err := p.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d, want %d", len(vecs), len(texts))
	}

	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if p.dimensions > 0 && len(v) != p.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), p.dimensions)
		}
		f := make([]float32, len(v))
		for j := range v {
			f[j] = float32(v[j])
		}
		out[i] = f
	}
	return out, nil
}

// ModelName 实现 Provider
func (p *EinoProvider) ModelName() string { return p.model }

// Dimensions 实现 Provider
func (p *EinoProvider) Dimensions() int { return p.dimensions }
