// Package retrieval 实现查询向量化、单文件/多文件/全局检索、质量过滤以及 RAG 上下文拼装
package retrieval

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/pkg/logger"
	"chem-rag-api/pkg/metrics"
)

var tracer = otel.Tracer("retrieval")

// maxParallelSearch 多文件检索的并发上限
const maxParallelSearch = 8

// Retriever 检索服务，本身无状态
type Retriever struct {
	index   IndexSearcher
	local   QueryEncoder
	primary QueryEncoder
	cfg     Config
}

// NewRetriever 创建检索服务；primary 可为 nil
func NewRetriever(index IndexSearcher, local QueryEncoder, primary QueryEncoder, cfg Config) *Retriever {
	return &Retriever{
		index:   index,
		local:   local,
		primary: primary,
		cfg:     cfg,
	}
}

// Options 单次检索参数，零值使用默认配置
type Options struct {
	TopK          int
	MinSimilarity *float64
	// UsePrimary 是否优先使用远程 Embedding
	UsePrimary bool
}

func (r *Retriever) resolveTopK(topK int) (int, error) {
	if topK == 0 {
		return r.cfg.DefaultTopK, nil
	}
	if topK < 0 || topK > r.cfg.MaxTopK {
		return 0, fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidTopK, topK, r.cfg.MaxTopK)
	}
	return topK, nil
}

func (r *Retriever) minSimilarity(opts Options) float64 {
	if opts.MinSimilarity != nil {
		return *opts.MinSimilarity
	}
	return r.cfg.MinSimilarity
}

// toResults 过滤低于阈值的命中并附加查询信息
func toResults(hits []entity.SearchHit, query, fileID string, minSim float64) []entity.RetrievalResult {
	out := make([]entity.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < minSim {
			continue
		}
		out = append(out, entity.RetrievalResult{
			Rank:       h.Rank,
			Similarity: h.Similarity,
			Metadata:   h.Metadata,
			Query:      query,
			FileID:     fileID,
		})
	}
	return out
}

// RetrieveFromFile 检索单个文件；索引不存在时返回空结果
func (r *Retriever) RetrieveFromFile(ctx context.Context, query, fileID string, opts Options) ([]entity.RetrievalResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.RetrieveFromFile",
		trace.WithAttributes(attribute.String("file_id", fileID)))
	defer span.End()
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if strings.TrimSpace(fileID) == "" {
		return nil, ErrEmptyFileID
	}
	topK, err := r.resolveTopK(opts.TopK)
	if err != nil {
		return nil, err
	}

	info := r.index.GetIndexInfo(ctx, fileID)
	if !info.Exists {
		logger.Warn(ctx, "vector index not found", "file_id", fileID)
		return []entity.RetrievalResult{}, nil
	}

	vec, strategy, err := r.EmbedQuery(ctx, query, opts.UsePrimary, info.Dimension)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	hits, err := r.index.Search(ctx, fileID, vec, topK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	results := toResults(hits, query, fileID, r.minSimilarity(opts))

	metrics.RetrievalDuration.WithLabelValues("file").Observe(time.Since(start).Seconds())
	metrics.RetrievalResults.WithLabelValues("file").Observe(float64(len(results)))
	span.SetAttributes(attribute.String("embedding.strategy", strategy), attribute.Int("results", len(results)))
	logger.Info(ctx, "retrieved from file",
		"file_id", fileID,
		"top_k", topK,
		"results", len(results),
		"strategy", strategy,
	)
	return results, nil
}

// RetrieveFromMultipleFiles 查询只向量化一次，各文件并行检索；单个文件失败时该文件结果为空
func (r *Retriever) RetrieveFromMultipleFiles(ctx context.Context, query string, fileIDs []string, opts Options) (map[string][]entity.RetrievalResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.RetrieveFromMultipleFiles",
		trace.WithAttributes(attribute.Int("files", len(fileIDs))))
	defer span.End()
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	topK, err := r.resolveTopK(opts.TopK)
	if err != nil {
		return nil, err
	}

	out, err := r.searchMany(ctx, query, fileIDs, topK, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	total := 0
	for _, rs := range out {
		total += len(rs)
	}
	metrics.RetrievalDuration.WithLabelValues("multi").Observe(time.Since(start).Seconds())
	metrics.RetrievalResults.WithLabelValues("multi").Observe(float64(total))
	logger.Info(ctx, "retrieved from multiple files", "files", len(fileIDs), "results", total)
	return out, nil
}

func (r *Retriever) searchMany(ctx context.Context, query string, fileIDs []string, topK int, opts Options) (map[string][]entity.RetrievalResult, error) {
	out := make(map[string][]entity.RetrievalResult, len(fileIDs))
	if len(fileIDs) == 0 {
		return out, nil
	}

	vec, _, err := r.EmbedQuery(ctx, query, opts.UsePrimary, r.index.Dimension())
	if err != nil {
		return nil, err
	}
	minSim := r.minSimilarity(opts)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSearch)
	for _, id := range fileIDs {
		g.Go(func() error {
			hits, err := r.index.Search(gctx, id, vec, topK)
			if err != nil {
				logger.Warn(gctx, "search file failed", "file_id", id, "error", err)
				hits = nil
			}
			rs := toResults(hits, query, id, minSim)
			mu.Lock()
			out[id] = rs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// RetrieveAllAvailable 检索所有已建索引的文件，合并排序后做质量过滤并截断到 topKTotal
func (r *Retriever) RetrieveAllAvailable(ctx context.Context, query string, opts Options) ([]entity.RetrievalResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.RetrieveAllAvailable")
	defer span.End()
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	total := opts.TopK
	if total == 0 {
		total = r.cfg.DefaultTopK * 2
	}
	if total < 0 || total > r.cfg.MaxTopK {
		return nil, fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidTopK, total, r.cfg.MaxTopK)
	}

	fileIDs := r.index.ListFileIDs(ctx)
	if len(fileIDs) == 0 {
		logger.Warn(ctx, "no vector index available")
		return []entity.RetrievalResult{}, nil
	}

	perFile := max(1, total/len(fileIDs))
	grouped, err := r.searchMany(ctx, query, fileIDs, perFile, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	merged := make([]entity.RetrievalResult, 0, perFile*len(fileIDs))
	for _, id := range fileIDs {
		merged = append(merged, grouped[id]...)
	}
	SortBySimilarity(merged)

	filtered := r.QualityFilter(ctx, merged)
	if len(filtered) > total {
		filtered = filtered[:total]
	}
	Rerank(filtered)

	metrics.RetrievalDuration.WithLabelValues("all").Observe(time.Since(start).Seconds())
	metrics.RetrievalResults.WithLabelValues("all").Observe(float64(len(filtered)))
	span.SetAttributes(attribute.Int("files", len(fileIDs)), attribute.Int("results", len(filtered)))
	logger.Info(ctx, "retrieved from all indices",
		"files", len(fileIDs),
		"per_file_top_k", perFile,
		"candidates", len(merged),
		"results", len(filtered),
	)
	return filtered, nil
}

// SortBySimilarity 按相似度降序稳定排序
func SortBySimilarity(results []entity.RetrievalResult) {
	slices.SortStableFunc(results, func(a, b entity.RetrievalResult) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})
}

// Rerank 按当前顺序重写 rank
func Rerank(results []entity.RetrievalResult) {
	for i := range results {
		results[i].Rank = i + 1
	}
}

// Status 检索服务状态
type Status struct {
	ServiceStatus           string   `json:"service_status"`
	PrimaryAvailable        bool     `json:"primary_available"`
	LocalEmbeddingAvailable bool     `json:"local_embedding_available"`
	EmbeddingModel          string   `json:"embedding_model"`
	PrimaryModel            string   `json:"primary_model,omitempty"`
	Dimension               int      `json:"dimension"`
	TotalIndices            int      `json:"total_indices"`
	AvailableFiles          []string `json:"available_files"`
	Config                  struct {
		TopK             int     `json:"top_k"`
		MinSimilarity    float64 `json:"min_similarity"`
		MaxContextLength int     `json:"max_context_length"`
	} `json:"config"`
}

// Status 汇总检索服务状态
func (r *Retriever) Status(ctx context.Context) Status {
	files := r.index.ListFileIDs(ctx)
	st := Status{
		ServiceStatus:           "healthy",
		PrimaryAvailable:        encoderAvailable(r.primary),
		LocalEmbeddingAvailable: encoderAvailable(r.local),
		EmbeddingModel:          r.local.ModelName(),
		Dimension:               r.index.Dimension(),
		TotalIndices:            len(files),
		AvailableFiles:          files,
	}
	if r.primary != nil {
		st.PrimaryModel = r.primary.ModelName()
	}
	if !st.LocalEmbeddingAvailable {
		st.ServiceStatus = "degraded"
	}
	st.Config.TopK = r.cfg.DefaultTopK
	st.Config.MinSimilarity = r.cfg.MinSimilarity
	st.Config.MaxContextLength = r.cfg.MaxContextLength
	return st
}

// Config 当前检索参数
func (r *Retriever) Config() Config { return r.cfg }
