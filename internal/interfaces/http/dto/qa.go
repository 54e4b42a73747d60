package dto

import (
	"chem-rag-api/internal/application/qa"
)

// AskRequest 问答请求
type AskRequest struct {
	Question      string   `json:"question" binding:"required"`
	FileIDs       []string `json:"file_ids"`
	TopK          int      `json:"top_k"`
	MinSimilarity *float64 `json:"min_similarity"`
	Temperature   *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
	MaxTokens     *int     `json:"max_tokens" binding:"omitempty,min=1,max=8192"`
	UsePrimary    *bool    `json:"use_primary"`
}

// ToAskRequest 转换为应用层请求
func (r *AskRequest) ToAskRequest() qa.AskRequest {
	out := qa.AskRequest{
		Question:      r.Question,
		FileIDs:       r.FileIDs,
		TopK:          r.TopK,
		MinSimilarity: r.MinSimilarity,
		Temperature:   r.Temperature,
		MaxTokens:     r.MaxTokens,
		UsePrimary:    true,
	}
	if r.UsePrimary != nil {
		out.UsePrimary = *r.UsePrimary
	}
	return out
}

// AvailableFilesResponse 可问答文件列表
type AvailableFilesResponse struct {
	TotalFiles int                `json:"total_files"`
	Files      []qa.AvailableFile `json:"files"`
}
