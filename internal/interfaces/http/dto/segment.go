package dto

import (
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
)

// SegmentListResponse 分段列表
type SegmentListResponse struct {
	FileID       string            `json:"file_id,omitempty"`
	SegmentCount int               `json:"segment_count"`
	Segments     []*entity.Segment `json:"segments"`
}

// NewSegmentList 构造分段列表响应
func NewSegmentList(fileID string, segs []*entity.Segment) *SegmentListResponse {
	if segs == nil {
		segs = []*entity.Segment{}
	}
	return &SegmentListResponse{FileID: fileID, SegmentCount: len(segs), Segments: segs}
}

// UpdateTagsRequest 更新分段标签
type UpdateTagsRequest struct {
	SegmentID string   `json:"segment_id" binding:"required"`
	Tags      []string `json:"tags"`
}

// BatchUpdateTagsRequest 批量更新标签
type BatchUpdateTagsRequest struct {
	Updates []repository.TagUpdate `json:"updates" binding:"required,min=1,dive"`
}

// UpdateTagsResponse 标签更新结果
type UpdateTagsResponse struct {
	SegmentID string   `json:"segment_id"`
	Tags      []string `json:"tags"`
}

// BatchUpdateTagsResponse 批量更新结果
type BatchUpdateTagsResponse struct {
	Requested int `json:"requested"`
	Updated   int `json:"updated"`
}

// DeleteSegmentsResponse 删除分段结果
type DeleteSegmentsResponse struct {
	FileID       string `json:"file_id"`
	DeletedCount int64  `json:"deleted_count"`
}
