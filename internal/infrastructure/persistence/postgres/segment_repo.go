package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
)

const segmentBatchSize = 200

// SegmentRepository 分段仓储实现
type SegmentRepository struct {
	client *Client
}

// NewSegmentRepository 创建分段仓储
func NewSegmentRepository(client *Client) *SegmentRepository {
	return &SegmentRepository{client: client}
}

// SaveSegments 批量保存分段，ID 冲突时覆盖
func (r *SegmentRepository) SaveSegments(ctx context.Context, segments []*entity.Segment) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.SaveSegments")
	defer span.End()

	if len(segments) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(segments, segmentBatchSize).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save segments: %w", err)
	}
	return nil
}

// GetByFileID 按顺序返回文件的全部分段
func (r *SegmentRepository) GetByFileID(ctx context.Context, fileID string) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.GetByFileID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var segments []*entity.Segment
	if err := db.Where("file_id = ?", fileID).
		Order("seg_order ASC").
		Find(&segments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get segments: %w", err)
	}
	return segments, nil
}

// GetByID 根据 ID 获取分段
func (r *SegmentRepository) GetByID(ctx context.Context, id string) (*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var seg entity.Segment
	if err := db.First(&seg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return &seg, nil
}

// UpdateTags 更新分段标签
func (r *SegmentRepository) UpdateTags(ctx context.Context, segmentID string, tags []string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.UpdateTags")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Segment{}).
		Where("id = ?", segmentID).
		Update("tags", pq.StringArray(tags))
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to update tags: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// BatchUpdateTags 在单个事务中批量更新标签
func (r *SegmentRepository) BatchUpdateTags(ctx context.Context, updates []repository.TagUpdate) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.BatchUpdateTags")
	defer span.End()

	updated := 0
	err := getDB(ctx, r.client.db).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			res := tx.Model(&entity.Segment{}).
				Where("id = ?", u.SegmentID).
				Update("tags", pq.StringArray(u.Tags))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to batch update tags: %w", err)
	}
	return updated, nil
}

// DeleteByFileID 删除文件的全部分段
func (r *SegmentRepository) DeleteByFileID(ctx context.Context, fileID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.DeleteByFileID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Where("file_id = ?", fileID).Delete(&entity.Segment{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, fmt.Errorf("failed to delete segments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SearchByKeyword 不区分大小写的文本包含查询
func (r *SegmentRepository) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.SearchByKeyword")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var segments []*entity.Segment
	if err := db.Where("text ILIKE ?", "%"+escapeLike(keyword)+"%").
		Order("file_id, seg_order").
		Limit(limit).
		Find(&segments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search segments: %w", err)
	}
	return segments, nil
}

// GetByTags 返回包含任一标签的分段
func (r *SegmentRepository) GetByTags(ctx context.Context, tags []string, limit int) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.GetByTags")
	defer span.End()

	if len(tags) == 0 {
		return nil, nil
	}
	db := getDB(ctx, r.client.db)
	var segments []*entity.Segment
	if err := db.Where("tags && ?", pq.StringArray(tags)).
		Order("file_id, seg_order").
		Limit(limit).
		Find(&segments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get segments by tags: %w", err)
	}
	return segments, nil
}

// Stats 分段统计：总数、按文件、按标签
func (r *SegmentRepository) Stats(ctx context.Context) (*entity.SegmentStats, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.Stats")
	defer span.End()

	db := getDB(ctx, r.client.db)
	stats := &entity.SegmentStats{}

	if err := db.Model(&entity.Segment{}).Count(&stats.TotalSegments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count segments: %w", err)
	}

	if err := db.Model(&entity.Segment{}).
		Select("file_id, COUNT(*) AS segment_count, AVG(character_count) AS avg_length").
		Group("file_id").
		Order("file_id").
		Scan(&stats.FileStats).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to stat segments by file: %w", err)
	}

	if err := db.Raw(
		"SELECT tag, COUNT(*) AS count FROM segments, unnest(tags) AS tag GROUP BY tag ORDER BY count DESC, tag",
	).Scan(&stats.TagStats).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to stat segment tags: %w", err)
	}

	return stats, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
