// Package entity 定义领域实体
package entity

import (
	"path/filepath"
	"strings"
	"time"
)

// FileType 支持的文档类型
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeTXT  FileType = "txt"
)

// FileTypeFromName 根据扩展名推断文档类型，未知类型返回空串
func FileTypeFromName(name string) FileType {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf":
		return FileTypePDF
	case "docx":
		return FileTypeDOCX
	case "txt":
		return FileTypeTXT
	default:
		return ""
	}
}

// DocumentStatus 文档处理状态
type DocumentStatus string

const (
	DocumentStatusUploaded  DocumentStatus = "uploaded"
	DocumentStatusParsed    DocumentStatus = "parsed"
	DocumentStatusSegmented DocumentStatus = "segmented"
	DocumentStatusIndexed   DocumentStatus = "indexed"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Document 已上传的文档
type Document struct {
	ID           string         `json:"file_id" gorm:"primaryKey;type:varchar(64)"`
	OriginalName string         `json:"original_name" gorm:"type:varchar(512)"`
	StoredPath   string         `json:"-" gorm:"type:varchar(1024)"`
	FileType     FileType       `json:"file_type" gorm:"type:varchar(16);index"`
	FileSize     int64          `json:"file_size"`
	Status       DocumentStatus `json:"status" gorm:"type:varchar(16);index"`
	SegmentCount int            `json:"segment_count"`
	ErrorMessage string         `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName gorm 表名
func (Document) TableName() string { return "documents" }

// MarkSegmented 记录分段结果
func (d *Document) MarkSegmented(count int) {
	d.SegmentCount = count
	d.Status = DocumentStatusSegmented
	d.ErrorMessage = ""
}

// MarkFailed 记录处理失败
func (d *Document) MarkFailed(msg string) {
	d.Status = DocumentStatusFailed
	d.ErrorMessage = msg
}
