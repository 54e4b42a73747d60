package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chem-rag-api/internal/domain/entity"
)

// JobRepository 索引任务仓储实现
type JobRepository struct {
	client *Client
}

// NewJobRepository 创建任务仓储
func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{client: client}
}

// Create 创建任务
func (r *JobRepository) Create(ctx context.Context, job *entity.IndexJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.IndexJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var job entity.IndexJob
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Update 更新任务
func (r *JobRepository) Update(ctx context.Context, job *entity.IndexJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// ListByFile 获取文件最近的任务
func (r *JobRepository) ListByFile(ctx context.Context, fileID string, limit int) ([]*entity.IndexJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.ListByFile")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	db := getDB(ctx, r.client.db)
	var jobs []*entity.IndexJob
	if err := db.Where("file_id = ?", fileID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}
