package repository

import (
	"context"

	"chem-rag-api/internal/domain/entity"
)

// DocumentFilter 文档过滤条件
type DocumentFilter struct {
	FileType entity.FileType
	Status   entity.DocumentStatus
}

// DocumentTypeStat 按类型统计
type DocumentTypeStat struct {
	FileType  entity.FileType `json:"file_type"`
	Count     int64           `json:"count"`
	TotalSize int64           `json:"total_size"`
}

// DocumentRepository 文档仓储接口
type DocumentRepository interface {
	// Create 创建文档记录
	Create(ctx context.Context, doc *entity.Document) error

	// GetByID 根据 ID 获取文档，不存在返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Document, error)

	// Update 更新文档
	Update(ctx context.Context, doc *entity.Document) error

	// Delete 删除文档
	Delete(ctx context.Context, id string) error

	// List 分页列出文档
	List(ctx context.Context, filter *DocumentFilter, pagination Pagination) (*PagedResult[*entity.Document], error)

	// StatsByType 按文件类型统计
	StatsByType(ctx context.Context) ([]DocumentTypeStat, error)
}
