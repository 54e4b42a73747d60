// Package llm 管理回答生成使用的 ChatModel 客户端
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"chem-rag-api/internal/config"
)

// ErrProviderNotConfigured 提供商未配置或缺少 API Key
var ErrProviderNotConfigured = errors.New("llm provider not configured")

// EinoFactory 管理多个 Eino ChatModel 客户端实例
type EinoFactory struct {
	config     *config.LLMConfig
	generation *config.GenerationConfig
	models     map[string]model.BaseChatModel
	mu         sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config:     &cfg.LLM,
		generation: &cfg.Generation,
		models:     make(map[string]model.BaseChatModel),
	}
}

// Available 默认提供商是否具备调用条件
func (f *EinoFactory) Available() bool {
	p, ok := f.config.Providers[f.config.DefaultProvider]
	return ok && p.APIKey != "" && p.Model != ""
}

// DefaultModelName 默认提供商的模型名
func (f *EinoFactory) DefaultModelName() string {
	return f.config.Providers[f.config.DefaultProvider].Model
}

// Get 获取指定名称的 ChatModel，如果未指定则返回默认客户端
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
	}
	if providerCfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s has no api key", ErrProviderNotConfigured, name)
	}

	maxTokens := providerCfg.MaxTokens
	if f.generation.MaxTokens > 0 {
		maxTokens = f.generation.MaxTokens
	}
	temperature := float32(providerCfg.Temperature)
	topP := float32(f.generation.TopP)

	// 使用 Eino 的 OpenAI 适配器
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

// Default 返回默认 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, "")
}
