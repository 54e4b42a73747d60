package entity

import "time"

// PreviewLength 元数据中文本预览的字符数
const PreviewLength = 100

// VectorMetadata 与索引中第 i 个向量一一对应的元数据
type VectorMetadata struct {
	SegmentID      string    `json:"segment_id"`
	FileID         string    `json:"file_id"`
	Order          int       `json:"order"`
	Tags           []string  `json:"tags"`
	FileName       string    `json:"file_name,omitempty"`
	CharacterCount int       `json:"character_count"`
	TextPreview    string    `json:"text_preview"`
	Text           string    `json:"text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DisplayText 返回用于上下文拼装的文本，优先使用预览
func (m *VectorMetadata) DisplayText() string {
	if m.TextPreview != "" {
		return m.TextPreview
	}
	return m.Text
}

// SearchHit 单个索引上的检索命中
type SearchHit struct {
	Rank       int            `json:"rank"`
	Similarity float64        `json:"similarity"`
	Metadata   VectorMetadata `json:"metadata"`
}

// RetrievalResult 附带查询信息的检索结果，不持久化
type RetrievalResult struct {
	Rank       int            `json:"rank"`
	Similarity float64        `json:"similarity"`
	Metadata   VectorMetadata `json:"metadata"`
	Query      string         `json:"query"`
	FileID     string         `json:"file_id"`
}

// IndexInfo 索引信息
type IndexInfo struct {
	FileID      string    `json:"file_id"`
	Exists      bool      `json:"exists"`
	VectorCount int       `json:"vector_count,omitempty"`
	Dimension   int       `json:"dimension,omitempty"`
	Metric      string    `json:"metric,omitempty"`
	IndexSize   int64     `json:"index_size,omitempty"`
	MetaSize    int64     `json:"metadata_size,omitempty"`
	ModifiedAt  time.Time `json:"modified_at,omitempty"`
}
