package qa

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"chem-rag-api/internal/application/retrieval"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/pkg/logger"
)

const (
	DefaultAskTopK = 3
	MaxAskTopK     = 20
)

var (
	// ErrEmptyQuestion 问题为空
	ErrEmptyQuestion = errors.New("question is required")
	// ErrInvalidTopK top_k 超出 1-20
	ErrInvalidTopK = errors.New("top_k must be between 1 and 20")
	// ErrGenerationFailed 回答生成失败
	ErrGenerationFailed = errors.New("answer generation failed")
)

// IndexLister 列出可检索的索引
type IndexLister interface {
	ListAllIndices(ctx context.Context) []entity.IndexInfo
}

// AskRequest 问答请求
type AskRequest struct {
	Question      string
	FileIDs       []string
	TopK          int
	MinSimilarity *float64
	UsePrimary    bool
	Temperature   *float64
	MaxTokens     *int
}

// RetrievalSummary 问答中的检索部分
type RetrievalSummary struct {
	TotalSegments int                      `json:"total_segments"`
	UsedSegments  int                      `json:"used_segments"`
	SearchTime    float64                  `json:"search_time"`
	MinSimilarity float64                  `json:"min_similarity"`
	CitedSegments []retrieval.CitedSegment `json:"cited_segments"`
}

// GenerationSummary 问答中的生成部分
type GenerationSummary struct {
	Model          string     `json:"model"`
	GenerationTime float64    `json:"generation_time"`
	TokenUsage     TokenUsage `json:"token_usage"`
	FinishReason   string     `json:"finish_reason"`
	Temperature    float64    `json:"temperature"`
	MaxTokens      int        `json:"max_tokens"`
}

// AskResult 问答结果
type AskResult struct {
	Question     string            `json:"question"`
	Answer       string            `json:"answer"`
	ResponseType string            `json:"response_type"`
	TotalTime    float64           `json:"total_time"`
	Retrieval    RetrievalSummary  `json:"retrieval_results"`
	Generation   GenerationSummary `json:"generation_results"`
	Quality      Quality           `json:"quality_assessment"`
	ContextUsed  bool              `json:"context_used"`
}

// Service 问答服务：检索 → 上下文拼装 → 生成 → 质量评估
type Service struct {
	retriever *retrieval.Retriever
	generator *Generator
	indices   IndexLister
	// llmAvailable 默认 LLM 是否已配置
	llmAvailable bool
}

// NewService 创建问答服务
func NewService(retriever *retrieval.Retriever, generator *Generator, indices IndexLister, llmAvailable bool) *Service {
	return &Service{
		retriever:    retriever,
		generator:    generator,
		indices:      indices,
		llmAvailable: llmAvailable,
	}
}

func (s *Service) validate(req *AskRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return ErrEmptyQuestion
	}
	if req.TopK == 0 {
		req.TopK = DefaultAskTopK
	}
	if req.TopK < 0 || req.TopK > MaxAskTopK {
		return ErrInvalidTopK
	}
	return nil
}

func (s *Service) minSimilarity(req *AskRequest) float64 {
	if req.MinSimilarity != nil {
		return *req.MinSimilarity
	}
	return s.retriever.Config().MinSimilarity
}

// retrieve 指定文件时每个文件取 max(1, top_k/n) 条后合并截断，否则检索全部索引
func (s *Service) retrieve(ctx context.Context, req *AskRequest) ([]entity.RetrievalResult, error) {
	if len(req.FileIDs) == 0 {
		return s.retriever.RetrieveAllAvailable(ctx, req.Question, retrieval.Options{
			TopK:          req.TopK,
			MinSimilarity: req.MinSimilarity,
			UsePrimary:    req.UsePrimary,
		})
	}

	perFile := max(1, req.TopK/len(req.FileIDs))
	grouped, err := s.retriever.RetrieveFromMultipleFiles(ctx, req.Question, req.FileIDs, retrieval.Options{
		TopK:          perFile,
		MinSimilarity: req.MinSimilarity,
		UsePrimary:    req.UsePrimary,
	})
	if err != nil {
		return nil, err
	}

	merged := make([]entity.RetrievalResult, 0, perFile*len(req.FileIDs))
	for _, id := range req.FileIDs {
		merged = append(merged, grouped[id]...)
	}
	retrieval.SortBySimilarity(merged)
	if len(merged) > req.TopK {
		merged = merged[:req.TopK]
	}
	retrieval.Rerank(merged)
	return merged, nil
}

// buildContext 检索并拼装上下文；没有引用段落时返回空上下文（直接回答）
func (s *Service) buildContext(ctx context.Context, req *AskRequest) (string, []entity.RetrievalResult, []retrieval.CitedSegment, float64, error) {
	start := time.Now()
	results, err := s.retrieve(ctx, req)
	if err != nil {
		return "", nil, nil, 0, err
	}
	searchTime := time.Since(start).Seconds()

	text, cited := s.retriever.FormatContextForRAG(ctx, results, 0)
	if len(cited) == 0 {
		text = ""
	}
	logger.Info(ctx, "qa context assembled",
		"segments", len(results),
		"cited", len(cited),
		"search_time", searchTime,
	)
	return text, results, cited, searchTime, nil
}

// Ask 完整问答流程
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	ctx, span := tracer.Start(ctx, "qa.Ask")
	defer span.End()
	start := time.Now()

	if err := s.validate(&req); err != nil {
		return nil, err
	}

	contextText, results, cited, searchTime, err := s.buildContext(ctx, &req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, &GenerateRequest{
		Question:      req.Question,
		Context:       contextText,
		CitedSegments: cited,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	in := s.generator.input(&GenerateRequest{Temperature: req.Temperature, MaxTokens: req.MaxTokens})
	res := &AskResult{
		Question:     req.Question,
		Answer:       answer.Answer,
		ResponseType: answer.ResponseType,
		Retrieval: RetrievalSummary{
			TotalSegments: len(results),
			UsedSegments:  len(cited),
			SearchTime:    round3(searchTime),
			MinSimilarity: s.minSimilarity(&req),
			CitedSegments: cited,
		},
		Generation: GenerationSummary{
			Model:          answer.Model,
			GenerationTime: round3(answer.GenerationTime),
			TokenUsage:     answer.TokenUsage,
			FinishReason:   answer.FinishReason,
			Temperature:    float64(*in.Temperature),
			MaxTokens:      *in.MaxTokens,
		},
		Quality:     EvaluateAnswerQuality(answer.Answer, contextText),
		ContextUsed: answer.ContextUsed,
	}
	res.TotalTime = round3(time.Since(start).Seconds())
	logger.Info(ctx, "qa completed", "total_time", res.TotalTime, "response_type", res.ResponseType)
	return res, nil
}

// AskStream 检索后流式生成，事件通过 emit 推送
func (s *Service) AskStream(ctx context.Context, req AskRequest, emit func(StreamEvent) error) error {
	ctx, span := tracer.Start(ctx, "qa.AskStream")
	defer span.End()

	if err := s.validate(&req); err != nil {
		return err
	}
	contextText, _, cited, _, err := s.buildContext(ctx, &req)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return s.generator.Stream(ctx, &GenerateRequest{
		Question:      req.Question,
		Context:       contextText,
		CitedSegments: cited,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
	}, emit)
}

// AvailableFile 可用于问答的文件
type AvailableFile struct {
	FileID      string `json:"file_id"`
	VectorCount int    `json:"vector_count"`
}

// GeneratorStatus 生成服务状态
type GeneratorStatus struct {
	ServiceStatus    string `json:"service_status"`
	LLMAvailable     bool   `json:"llm_available"`
	ChatModel        string `json:"chat_model"`
	MaxPromptTokens  int    `json:"max_prompt_tokens"`
	MaxContextLength int    `json:"max_context_length"`
}

// Health 问答服务健康状态
type Health struct {
	ServiceStatus       string           `json:"service_status"`
	RetrieverStatus     retrieval.Status `json:"retriever_status"`
	GeneratorStatus     GeneratorStatus  `json:"generator_status"`
	AvailableFiles      []AvailableFile  `json:"available_files"`
	TotalAvailableFiles int              `json:"total_available_files"`
}

// AvailableIndices 已建索引列表
func (s *Service) AvailableIndices(ctx context.Context) []entity.IndexInfo {
	return s.indices.ListAllIndices(ctx)
}

// Health 汇总检索与生成状态；任一不健康则整体降级，两者都不健康为 unhealthy
func (s *Service) Health(ctx context.Context) Health {
	rs := s.retriever.Status(ctx)
	gs := GeneratorStatus{
		ServiceStatus:    "healthy",
		LLMAvailable:     s.llmAvailable,
		ChatModel:        s.generator.cfg.Model,
		MaxPromptTokens:  s.generator.cfg.MaxPromptTokens,
		MaxContextLength: s.retriever.Config().MaxContextLength,
	}
	if !s.llmAvailable {
		gs.ServiceStatus = "limited"
	}

	overall := "healthy"
	if rs.ServiceStatus != "healthy" {
		overall = "degraded"
	}
	if gs.ServiceStatus != "healthy" {
		if overall == "healthy" {
			overall = "degraded"
		} else {
			overall = "unhealthy"
		}
	}

	infos := s.AvailableIndices(ctx)
	files := make([]AvailableFile, 0, len(infos))
	for _, info := range infos {
		files = append(files, AvailableFile{FileID: info.FileID, VectorCount: info.VectorCount})
	}
	return Health{
		ServiceStatus:       overall,
		RetrieverStatus:     rs,
		GeneratorStatus:     gs,
		AvailableFiles:      files,
		TotalAvailableFiles: len(files),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
