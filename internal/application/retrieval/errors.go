package retrieval

import "errors"

var (
	// ErrEmptyQuery 查询为空
	ErrEmptyQuery = errors.New("query is required")
	// ErrEmptyFileID 未指定文件
	ErrEmptyFileID = errors.New("file_id is required")
	// ErrInvalidTopK top_k 超出允许范围
	ErrInvalidTopK = errors.New("top_k out of range")
	// ErrQueryEmbedding 所有查询向量化策略均失败
	ErrQueryEmbedding = errors.New("query embedding failed")
)
