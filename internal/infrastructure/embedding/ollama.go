package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOllamaURL Ollama 默认地址
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultOllamaModel 默认 Embedding 模型
	DefaultOllamaModel = "all-minilm:l6-v2"

	// DefaultOllamaDimensions all-minilm 输出维度
	DefaultOllamaDimensions = 384

	// DefaultOllamaTimeout 单次请求超时
	DefaultOllamaTimeout = 30 * time.Second

	apiPathTags       = "/api/tags"
	apiPathEmbeddings = "/api/embeddings"
)

// OllamaProvider 通过 Ollama API 生成向量
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// OllamaOption OllamaProvider 选项
type OllamaOption func(*OllamaProvider)

// WithBaseURL 设置 Ollama 地址
func WithBaseURL(url string) OllamaOption {
	return func(p *OllamaProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel 设置模型
func WithModel(model string) OllamaOption {
	return func(p *OllamaProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDimensions 设置期望维度
func WithDimensions(dims int) OllamaOption {
	return func(p *OllamaProvider) {
		if dims > 0 {
			p.dimensions = dims
		}
	}
}

// WithTimeout 设置 HTTP 超时
func WithTimeout(timeout time.Duration) OllamaOption {
	return func(p *OllamaProvider) {
		if timeout > 0 {
			p.client.Timeout = timeout
		}
	}
}

// NewOllamaProvider 创建 Ollama Provider
func NewOllamaProvider(opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:    DefaultOllamaURL,
		model:      DefaultOllamaModel,
		dimensions: DefaultOllamaDimensions,
		client:     &http.Client{Timeout: DefaultOllamaTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Embed 实现 Provider；Ollama 的 /api/embeddings 每次只接受一条文本
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := p.embedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *OllamaProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+apiPathEmbeddings, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Embedding) != p.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(result.Embedding), p.dimensions)
	}
	return result.Embedding, nil
}

// ModelName 实现 Provider
func (p *OllamaProvider) ModelName() string { return p.model }

// Dimensions 实现 Provider
func (p *OllamaProvider) Dimensions() int { return p.dimensions }

// HasModel 检查 Ollama 是否已拉取所需模型
func (p *OllamaProvider) HasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+apiPathTags, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("ollama is not running: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var result ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	for _, m := range result.Models {
		if m.Name == p.model {
			return true, nil
		}
	}
	return false, nil
}

func formatErrorBody(body io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return fmt.Sprintf("(failed to read response body: %v)", err)
	}
	return strings.TrimSpace(string(b))
}
