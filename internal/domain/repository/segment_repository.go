package repository

import (
	"context"

	"chem-rag-api/internal/domain/entity"
)

// TagUpdate 单条标签更新
type TagUpdate struct {
	SegmentID string   `json:"segment_id"`
	Tags      []string `json:"tags"`
}

// SegmentRepository 分段仓储接口
type SegmentRepository interface {
	// SaveSegments 批量保存分段
	SaveSegments(ctx context.Context, segments []*entity.Segment) error

	// GetByFileID 按 order 升序返回文件的全部分段
	GetByFileID(ctx context.Context, fileID string) ([]*entity.Segment, error)

	// GetByID 根据 ID 获取分段，不存在返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Segment, error)

	// UpdateTags 更新分段标签，返回是否命中
	UpdateTags(ctx context.Context, segmentID string, tags []string) (bool, error)

	// BatchUpdateTags 批量更新标签，返回成功条数
	BatchUpdateTags(ctx context.Context, updates []TagUpdate) (int, error)

	// DeleteByFileID 删除文件的全部分段，返回删除条数
	DeleteByFileID(ctx context.Context, fileID string) (int64, error)

	// SearchByKeyword 文本包含关键字的分段
	SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*entity.Segment, error)

	// GetByTags 含任一标签的分段
	GetByTags(ctx context.Context, tags []string, limit int) ([]*entity.Segment, error)

	// Stats 分段统计
	Stats(ctx context.Context) (*entity.SegmentStats, error)
}
