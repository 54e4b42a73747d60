package retrieval

import (
	"context"
	"fmt"
	"strings"

	"chem-rag-api/pkg/logger"
	"chem-rag-api/pkg/metrics"
)

// queryStrategy 查询向量化策略，按顺序尝试
type queryStrategy struct {
	name    string
	encoder QueryEncoder
}

// strategies 返回本次查询要尝试的策略
func (r *Retriever) strategies(usePrimary bool) []queryStrategy {
	out := make([]queryStrategy, 0, 2)
	if usePrimary && r.primary != nil {
		out = append(out, queryStrategy{name: "primary", encoder: r.primary})
	}
	out = append(out, queryStrategy{name: "local", encoder: r.local})
	return out
}

// encode 用单个策略向量化，失败时 reason 为 error 或 dimension
func (s queryStrategy) encode(ctx context.Context, query string, expectedDim int) ([]float32, string, error) {
	// 声明维度已不匹配时不发起请求
	if d := s.encoder.Dimension(); d != expectedDim {
		return nil, "dimension", fmt.Errorf("%s embedding has dimension %d, index expects %d", s.name, d, expectedDim)
	}
	vec, err := s.encoder.EncodeText(ctx, query)
	if err != nil {
		return nil, "error", err
	}
	if len(vec) != expectedDim {
		return nil, "dimension", fmt.Errorf("%s embedding has dimension %d, index expects %d", s.name, len(vec), expectedDim)
	}
	return vec, "", nil
}

// EmbedQuery 查询向量化：优先远程模型，失败或维度与目标索引不一致时回退到本地模型。
// 返回向量和实际使用的策略名。
func (r *Retriever) EmbedQuery(ctx context.Context, query string, usePrimary bool, expectedDim int) ([]float32, string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, "", ErrEmptyQuery
	}
	if expectedDim <= 0 {
		expectedDim = r.index.Dimension()
	}

	var lastErr error
	chain := r.strategies(usePrimary)
	for i, s := range chain {
		vec, reason, err := s.encode(ctx, query, expectedDim)
		if err == nil {
			logger.Debug(ctx, "query embedded", "strategy", s.name, "model", s.encoder.ModelName(), "dimension", len(vec))
			return vec, s.name, nil
		}
		lastErr = err

		if i+1 < len(chain) {
			next := chain[i+1].name
			metrics.EmbeddingFallbackTotal.WithLabelValues(next, reason).Inc()
			logger.Warn(ctx, "query embedding strategy failed, falling back",
				"strategy", s.name,
				"fallback", next,
				"reason", reason,
				"error", lastErr,
			)
		}
	}
	return nil, "", fmt.Errorf("%w: %v", ErrQueryEmbedding, lastErr)
}
