package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chem-rag-api/internal/config"
)

// HTTPProvider 调用自建 Embedding 服务（如 sentence-transformers sidecar）的 /embed 接口
type HTTPProvider struct {
	endpoint   string
	model      string
	dimensions int
	batchSize  int
	httpClient *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

// NewHTTPProvider 创建 HTTP Provider
func NewHTTPProvider(cfg *config.LocalEmbeddingConfig) *HTTPProvider {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	model := cfg.Model
	if model == "" {
		model = "paraphrase-multilingual-MiniLM-L12-v2"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		endpoint:   cfg.Endpoint,
		model:      model,
		dimensions: cfg.Dimension,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ModelName 实现 Provider
func (c *HTTPProvider) ModelName() string { return c.model }

// Dimensions 实现 Provider
func (c *HTTPProvider) Dimensions() int { return c.dimensions }

// Embed 实现 Provider，按 batchSize 分批请求
func (c *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := min(i+c.batchSize, len(texts))

		resp, err := c.doBatchEmbed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-i {
			return nil, fmt.Errorf("embedding response size mismatch: got %d, want %d", len(resp.Embeddings), end-i)
		}
		for _, v := range resp.Embeddings {
			if c.dimensions > 0 && len(v) != c.dimensions {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), c.dimensions)
			}
		}
		all = append(all, resp.Embeddings...)
	}
	return all, nil
}

func (c *HTTPProvider) doBatchEmbed(ctx context.Context, texts []string) (*embedResponse, error) {
	reqBody, err := json.Marshal(&embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	endpoint := strings.TrimRight(c.endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding request failed: status=%d", httpResp.StatusCode)
	}

	var resp embedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	return &resp, nil
}
