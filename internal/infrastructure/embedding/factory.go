package embedding

import (
	"context"
	"fmt"
	"strings"

	"chem-rag-api/internal/config"
)

// 本地 Provider 类型
const (
	ProviderHash   = "hash"
	ProviderHTTP   = "http"
	ProviderOllama = "ollama"
)

// NewLocalProvider 按配置创建本地（兜底）Provider
func NewLocalProvider(cfg *config.LocalEmbeddingConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		return NewHashingProvider(cfg.Dimension), nil
	case ProviderHTTP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding.local.endpoint is required for provider %q", cfg.Provider)
		}
		return NewHTTPProvider(cfg), nil
	case ProviderOllama:
		return NewOllamaProvider(
			WithBaseURL(cfg.Endpoint),
			WithModel(cfg.Model),
			WithDimensions(cfg.Dimension),
			WithTimeout(cfg.Timeout),
		), nil
	default:
		return nil, fmt.Errorf("unknown local embedding provider: %s", cfg.Provider)
	}
}

// NewPrimaryProvider 创建远程 Provider；未启用时返回 nil, nil
func NewPrimaryProvider(ctx context.Context, cfg *config.PrimaryEmbeddingConfig) (Provider, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	return NewEinoProvider(ctx, cfg)
}
