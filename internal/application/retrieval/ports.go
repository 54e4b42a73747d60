package retrieval

import (
	"context"

	"chem-rag-api/internal/domain/entity"
)

// IndexSearcher 检索依赖的向量索引能力，由 vectorstore.Store 实现
type IndexSearcher interface {
	Search(ctx context.Context, fileID string, query []float32, topK int) ([]entity.SearchHit, error)
	IndexExists(fileID string) bool
	GetIndexInfo(ctx context.Context, fileID string) entity.IndexInfo
	ListFileIDs(ctx context.Context) []string
	Dimension() int
}

// QueryEncoder 查询向量化能力，由 embedding.Service 实现
type QueryEncoder interface {
	EncodeText(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
}

// readiness 可选能力：报告编码器最近一次调用模型是否成功
type readiness interface {
	Ready() bool
}

// encoderAvailable 编码器是否可用；未实现 readiness 时视为可用
func encoderAvailable(e QueryEncoder) bool {
	if e == nil {
		return false
	}
	if r, ok := e.(readiness); ok {
		return r.Ready()
	}
	return true
}
