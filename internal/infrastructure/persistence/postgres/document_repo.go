package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
)

// DocumentRepository 文档仓储实现
type DocumentRepository struct {
	client *Client
}

// NewDocumentRepository 创建文档仓储
func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

// Create 创建文档记录
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(doc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取文档
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var doc entity.Document
	if err := db.First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// Update 更新文档
func (r *DocumentRepository) Update(ctx context.Context, doc *entity.Document) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(doc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// Delete 删除文档
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Document{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// List 分页列出文档，按上传时间倒序
func (r *DocumentRepository) List(ctx context.Context, filter *repository.DocumentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Document], error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Document{})
	if filter != nil {
		if filter.FileType != "" {
			query = query.Where("file_type = ?", filter.FileType)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	var docs []*entity.Document
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&docs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return repository.NewPagedResult(docs, total, pagination), nil
}

// StatsByType 按文件类型统计数量与总大小
func (r *DocumentRepository) StatsByType(ctx context.Context) ([]repository.DocumentTypeStat, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.StatsByType")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var stats []repository.DocumentTypeStat
	if err := db.Model(&entity.Document{}).
		Select("file_type, COUNT(*) AS count, COALESCE(SUM(file_size), 0) AS total_size").
		Group("file_type").
		Order("file_type").
		Scan(&stats).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to stat documents: %w", err)
	}
	return stats, nil
}
