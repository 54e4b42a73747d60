package repository

import (
	"context"

	"chem-rag-api/internal/domain/entity"
)

// JobRepository 索引任务仓储接口
type JobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.IndexJob) error

	// GetByID 根据 ID 获取任务，不存在返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.IndexJob, error)

	// Update 更新任务
	Update(ctx context.Context, job *entity.IndexJob) error

	// ListByFile 获取文件最近的任务
	ListByFile(ctx context.Context, fileID string, limit int) ([]*entity.IndexJob, error)
}
