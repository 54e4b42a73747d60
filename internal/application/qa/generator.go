// Package qa 实现基于检索上下文的问答生成
package qa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chem-rag-api/internal/application/retrieval"
	"chem-rag-api/internal/config"
	workflowchain "chem-rag-api/internal/workflow/chain"
	wfmodel "chem-rag-api/internal/workflow/model"
	workflowport "chem-rag-api/internal/workflow/port"
	"chem-rag-api/pkg/logger"
)

var tracer = otel.Tracer("qa")

// 回答类型
const (
	ResponseTypeRAG    = "rag_based"
	ResponseTypeDirect = "direct_answer"
	ResponseTypeError  = "error"
)

const (
	// TruncationMarker 上下文被截断时追加的标记
	TruncationMarker = "\n\n[内容已截断...]"
	// truncationMargin 截断时为回答预留的 token 余量
	truncationMargin       = 500
	DefaultMaxPromptTokens = 3000
)

// GeneratorConfig 生成参数默认值
type GeneratorConfig struct {
	Provider        string
	Model           string
	Temperature     float64
	MaxTokens       int
	TopP            float64
	MaxPromptTokens int
}

// GeneratorConfigFrom 从应用配置构造
func GeneratorConfigFrom(llm config.LLMConfig, gen config.GenerationConfig) GeneratorConfig {
	cfg := GeneratorConfig{
		Provider:        llm.DefaultProvider,
		Model:           llm.Providers[llm.DefaultProvider].Model,
		Temperature:     gen.Temperature,
		MaxTokens:       gen.MaxTokens,
		TopP:            gen.TopP,
		MaxPromptTokens: gen.MaxPromptTokens,
	}
	if cfg.MaxPromptTokens <= 0 {
		cfg.MaxPromptTokens = DefaultMaxPromptTokens
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	return cfg
}

// GenerateRequest 单次生成请求，Context 为空时直接回答
type GenerateRequest struct {
	Question      string
	Context       string
	CitedSegments []retrieval.CitedSegment
	Temperature   *float64
	MaxTokens     *int
}

// TokenUsage token 用量
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Answer 生成结果
type Answer struct {
	Success        bool                     `json:"success"`
	Answer         string                   `json:"answer"`
	ResponseType   string                   `json:"response_type"`
	FinishReason   string                   `json:"finish_reason"`
	GenerationTime float64                  `json:"generation_time"`
	TokenUsage     TokenUsage               `json:"token_usage"`
	Model          string                   `json:"model"`
	CitedSegments  []retrieval.CitedSegment `json:"cited_segments"`
	ContextUsed    bool                     `json:"context_used"`
	Error          string                   `json:"error,omitempty"`
}

// Generator 回答生成器
type Generator struct {
	chain *workflowchain.QAChain
	cfg   GeneratorConfig
}

// NewGenerator 创建回答生成器
func NewGenerator(factory workflowport.ChatModelFactory, cfg GeneratorConfig) *Generator {
	if cfg.MaxPromptTokens <= 0 {
		cfg.MaxPromptTokens = DefaultMaxPromptTokens
	}
	return &Generator{
		chain: workflowchain.NewQAChain(factory),
		cfg:   cfg,
	}
}

// Config 当前生成参数
func (g *Generator) Config() GeneratorConfig { return g.cfg }

// EstimateTokens 粗略估算 token 数：每 4 个字符约 1 个 token
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// TruncateContext 按 (maxPromptTokens-500)/promptTokens 的比例截断上下文；
// 比例不为正时原样返回。
func TruncateContext(text string, promptTokens, maxPromptTokens int) string {
	if promptTokens <= 0 {
		return text
	}
	ratio := float64(maxPromptTokens-truncationMargin) / float64(promptTokens)
	if ratio <= 0 {
		return text
	}
	runes := []rune(text)
	target := int(float64(len(runes)) * ratio)
	if target >= len(runes) {
		return text
	}
	return string(runes[:target]) + TruncationMarker
}

func (g *Generator) input(req *GenerateRequest) *wfmodel.QAGenerateInput {
	in := &wfmodel.QAGenerateInput{
		Question: strings.TrimSpace(req.Question),
		Provider: g.cfg.Provider,
		Model:    g.cfg.Model,
	}
	if strings.TrimSpace(req.Context) != "" {
		in.Context = req.Context
	}

	temperature := float32(g.cfg.Temperature)
	if req.Temperature != nil {
		temperature = float32(*req.Temperature)
	}
	in.Temperature = &temperature

	maxTokens := g.cfg.MaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	in.MaxTokens = &maxTokens

	if g.cfg.TopP > 0 {
		topP := float32(g.cfg.TopP)
		in.TopP = &topP
	}
	return in
}

// prepare 渲染提示词，超出 token 预算时截断上下文后重新渲染
func (g *Generator) prepare(ctx context.Context, req *GenerateRequest) (*wfmodel.QAGenerateInput, []*schema.Message, error) {
	in := g.input(req)
	msgs, err := g.chain.FormatMessages(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if !in.HasContext() || len(msgs) == 0 {
		return in, msgs, nil
	}

	tokens := EstimateTokens(msgs[len(msgs)-1].Content)
	if tokens <= g.cfg.MaxPromptTokens {
		return in, msgs, nil
	}

	logger.Warn(ctx, "prompt too long, truncating context",
		"estimated_tokens", tokens,
		"max_prompt_tokens", g.cfg.MaxPromptTokens,
	)
	truncated := TruncateContext(in.Context, tokens, g.cfg.MaxPromptTokens)
	if truncated == in.Context {
		return in, msgs, nil
	}
	in.Context = truncated
	msgs, err = g.chain.FormatMessages(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "context truncated",
		"estimated_tokens", EstimateTokens(msgs[len(msgs)-1].Content),
	)
	return in, msgs, nil
}

func responseType(in *wfmodel.QAGenerateInput) string {
	if in.HasContext() {
		return ResponseTypeRAG
	}
	return ResponseTypeDirect
}

// Generate 生成回答。失败时同时返回 response_type=error 的结果和错误
func (g *Generator) Generate(ctx context.Context, req *GenerateRequest) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "qa.Generate")
	defer span.End()
	start := time.Now()

	cited := req.CitedSegments
	if cited == nil {
		cited = []retrieval.CitedSegment{}
	}

	in, msgs, err := g.prepare(ctx, req)
	if err == nil {
		span.SetAttributes(attribute.String("qa.response_type", responseType(in)))
		var out *schema.Message
		out, err = g.chain.Generate(ctx, in, msgs)
		if err == nil {
			ans := &Answer{
				Success:        true,
				Answer:         strings.TrimSpace(out.Content),
				ResponseType:   responseType(in),
				FinishReason:   "unknown",
				GenerationTime: time.Since(start).Seconds(),
				Model:          g.cfg.Model,
				CitedSegments:  cited,
				ContextUsed:    in.HasContext(),
			}
			if out.ResponseMeta != nil {
				if out.ResponseMeta.FinishReason != "" {
					ans.FinishReason = out.ResponseMeta.FinishReason
				}
				if u := out.ResponseMeta.Usage; u != nil {
					ans.TokenUsage = TokenUsage{
						PromptTokens:     u.PromptTokens,
						CompletionTokens: u.CompletionTokens,
						TotalTokens:      u.TotalTokens,
					}
				}
			}
			logger.Info(ctx, "answer generated",
				"response_type", ans.ResponseType,
				"generation_time", ans.GenerationTime,
				"total_tokens", ans.TokenUsage.TotalTokens,
			)
			return ans, nil
		}
	}

	span.RecordError(err)
	logger.Error(ctx, "failed to generate answer", err)
	return &Answer{
		Success:       false,
		Answer:        fmt.Sprintf("抱歉，回答生成时遇到错误：%v", err),
		ResponseType:  ResponseTypeError,
		Model:         g.cfg.Model,
		CitedSegments: []retrieval.CitedSegment{},
		Error:         err.Error(),
	}, err
}

// 流式事件类型
const (
	StreamEventStart   = "start"
	StreamEventContent = "content"
	StreamEventEnd     = "end"
	StreamEventError   = "error"
)

// StreamEvent 流式生成事件
type StreamEvent struct {
	Type           string                   `json:"type"`
	ResponseType   string                   `json:"response_type,omitempty"`
	ContextUsed    bool                     `json:"context_used,omitempty"`
	CitedSegments  []retrieval.CitedSegment `json:"cited_segments,omitempty"`
	Content        string                   `json:"content,omitempty"`
	Accumulated    string                   `json:"accumulated,omitempty"`
	FullAnswer     string                   `json:"full_answer,omitempty"`
	GenerationTime float64                  `json:"generation_time,omitempty"`
	TokenUsage     *TokenUsage              `json:"token_usage,omitempty"`
	Model          string                   `json:"model,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// Stream 流式生成：start → content* → end；出错时以 error 事件结束并返回错误。
// emit 返回错误（如客户端断开）时停止生成。
func (g *Generator) Stream(ctx context.Context, req *GenerateRequest, emit func(StreamEvent) error) error {
	ctx, span := tracer.Start(ctx, "qa.Stream")
	defer span.End()
	start := time.Now()

	fail := func(err error) error {
		span.RecordError(err)
		logger.Error(ctx, "stream generation failed", err)
		_ = emit(StreamEvent{Type: StreamEventError, Error: err.Error(), Model: g.cfg.Model})
		return err
	}

	in, msgs, err := g.prepare(ctx, req)
	if err != nil {
		return fail(err)
	}

	cited := req.CitedSegments
	if cited == nil {
		cited = []retrieval.CitedSegment{}
	}
	if err := emit(StreamEvent{
		Type:          StreamEventStart,
		ResponseType:  responseType(in),
		ContextUsed:   in.HasContext(),
		CitedSegments: cited,
	}); err != nil {
		return err
	}

	reader, err := g.chain.Stream(ctx, in, msgs)
	if err != nil {
		return fail(err)
	}
	defer reader.Close()

	var full strings.Builder
	var usage *TokenUsage
	for {
		msg, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return fail(recvErr)
		}

		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			u := msg.ResponseMeta.Usage
			usage = &TokenUsage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
		if msg.Content == "" {
			continue
		}
		full.WriteString(msg.Content)
		if err := emit(StreamEvent{
			Type:        StreamEventContent,
			Content:     msg.Content,
			Accumulated: full.String(),
		}); err != nil {
			return err
		}
	}

	return emit(StreamEvent{
		Type:           StreamEventEnd,
		FullAnswer:     full.String(),
		GenerationTime: time.Since(start).Seconds(),
		TokenUsage:     usage,
		Model:          g.cfg.Model,
	})
}
