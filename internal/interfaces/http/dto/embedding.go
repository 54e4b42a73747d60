package dto

import (
	"chem-rag-api/internal/application/retrieval"
	"chem-rag-api/internal/domain/entity"
)

// BuildIndexRequest 构建索引请求
type BuildIndexRequest struct {
	Recreate  bool `json:"recreate"`
	BatchSize int  `json:"batch_size" binding:"omitempty,min=1,max=256"`
}

// SearchRequest 单文件检索请求
type SearchRequest struct {
	Query      string   `json:"query" binding:"required"`
	TopK       int      `json:"top_k" binding:"omitempty,min=1"`
	MinScore   *float64 `json:"min_score"`
	UsePrimary *bool    `json:"use_primary"`
}

// Options 转换为检索参数，默认优先使用远程 Embedding
func (r *SearchRequest) Options() retrieval.Options {
	opts := retrieval.Options{TopK: r.TopK, MinSimilarity: r.MinScore, UsePrimary: true}
	if r.TopK == 0 {
		opts.TopK = 5
	}
	if r.UsePrimary != nil {
		opts.UsePrimary = *r.UsePrimary
	}
	return opts
}

// MultiSearchRequest 多文件检索请求
type MultiSearchRequest struct {
	SearchRequest
	FileIDs []string `json:"file_ids" binding:"required,min=1"`
}

// SearchResponse 单文件检索结果
type SearchResponse struct {
	Query        string                   `json:"query"`
	FileID       string                   `json:"file_id"`
	TotalResults int                      `json:"total_results"`
	Results      []entity.RetrievalResult `json:"results"`
}

// MultiSearchResponse 多文件检索结果
type MultiSearchResponse struct {
	Query        string                              `json:"query"`
	FileIDs      []string                            `json:"file_ids"`
	TotalResults int                                 `json:"total_results"`
	Results      map[string][]entity.RetrievalResult `json:"results"`
}

// IndexListResponse 索引列表
type IndexListResponse struct {
	TotalIndices int                `json:"total_indices"`
	Indices      []entity.IndexInfo `json:"indices"`
}
