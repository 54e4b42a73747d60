package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/pkg/logger"
	"chem-rag-api/pkg/metrics"
)

// DefaultBatchSize 默认批大小
const DefaultBatchSize = 32

// Service 统一的向量化服务：空文本返回零向量，输出均为单位向量
type Service struct {
	provider  Provider
	label     string
	batchSize int

	// ready 最近一次调用（含 Warmup）是否成功
	ready atomic.Bool
}

// ServiceOption Service 选项
type ServiceOption func(*Service)

// WithLabel 设置指标标签（local / primary）
func WithLabel(label string) ServiceOption {
	return func(s *Service) { s.label = label }
}

// WithBatchSize 设置默认批大小
func WithBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewService 创建向量化服务
func NewService(provider Provider, opts ...ServiceOption) *Service {
	s := &Service{
		provider:  provider,
		label:     "local",
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimension 向量维度
func (s *Service) Dimension() int { return s.provider.Dimensions() }

// ModelName 模型名称
func (s *Service) ModelName() string { return s.provider.ModelName() }

// Label 指标标签
func (s *Service) Label() string { return s.label }

// Ready 最近一次调用模型是否成功，未调用过时为 false
func (s *Service) Ready() bool { return s.ready.Load() }

// warmupTexts 批量请求不经过查询向量缓存，保证真实调用模型
var warmupTexts = []string{"化工安全", "工艺流程"}

// Warmup 检查模型可用且维度正确
func (s *Service) Warmup(ctx context.Context) error {
	vecs, err := s.call(ctx, warmupTexts)
	if err != nil {
		return fmt.Errorf("embedding model %s unavailable: %w", s.ModelName(), err)
	}
	logger.Info(ctx, "embedding model ready",
		"provider", s.label,
		"model", s.ModelName(),
		"dimension", len(vecs[0]),
	)
	return nil
}

// EncodeText 单条文本向量化；空白文本返回零向量
func (s *Service) EncodeText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, s.Dimension()), nil
	}
	vecs, err := s.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return Normalize(vecs[0]), nil
}

// EncodeBatch 批量向量化，保持输入顺序与数量
func (s *Service) EncodeBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	out := make([][]float32, len(texts))
	idx := make([]int, 0, len(texts))
	valid := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, s.Dimension())
			continue
		}
		idx = append(idx, i)
		valid = append(valid, t)
	}

	for start := 0; start < len(valid); start += batchSize {
		end := min(start+batchSize, len(valid))
		vecs, err := s.call(ctx, valid[start:end])
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			out[idx[start+j]] = Normalize(v)
		}
	}
	return out, nil
}

// EncodeSegments 分段向量化并生成一一对应的元数据
func (s *Service) EncodeSegments(ctx context.Context, segments []*entity.Segment, fileName string, batchSize int) ([][]float32, []entity.VectorMetadata, error) {
	if len(segments) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(segments))
	metas := make([]entity.VectorMetadata, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
		tags := make([]string, len(seg.Tags))
		copy(tags, seg.Tags)
		metas[i] = entity.VectorMetadata{
			SegmentID:      seg.ID,
			FileID:         seg.FileID,
			Order:          seg.Order,
			Tags:           tags,
			FileName:       fileName,
			CharacterCount: seg.CharacterCount,
			TextPreview:    entity.TextPreview(seg.Text, entity.PreviewLength),
			Text:           seg.Text,
			CreatedAt:      seg.CreatedAt,
		}
	}

	vecs, err := s.EncodeBatch(ctx, texts, batchSize)
	if err != nil {
		return nil, nil, err
	}
	return vecs, metas, nil
}

func (s *Service) call(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := s.provider.Embed(ctx, texts)
	metrics.EmbeddingDuration.WithLabelValues(s.label).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(s.label, "error").Inc()
		if ctx.Err() == nil {
			s.ready.Store(false)
		}
		return nil, err
	}
	if len(vecs) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(s.label, "error").Inc()
		s.ready.Store(false)
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vecs), len(texts))
	}
	dim := s.Dimension()
	for _, v := range vecs {
		if len(v) != dim {
			metrics.EmbeddingRequestsTotal.WithLabelValues(s.label, "error").Inc()
			s.ready.Store(false)
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
		}
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(s.label, "success").Inc()
	s.ready.Store(true)
	return vecs, nil
}

// Normalize 原地 L2 归一化；零向量保持不变
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// CosineSimilarity 余弦相似度，任一向量范数为 0 时返回 0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
