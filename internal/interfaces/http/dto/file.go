package dto

import (
	"time"

	"chem-rag-api/internal/domain/entity"
)

// FileResponse 文档响应
type FileResponse struct {
	FileID       string    `json:"file_id"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	Status       string    `json:"status"`
	SegmentCount int       `json:"segment_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UploadTime   time.Time `json:"upload_time"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToFileResponse 转换文档
func ToFileResponse(d *entity.Document) *FileResponse {
	if d == nil {
		return nil
	}
	return &FileResponse{
		FileID:       d.ID,
		OriginalName: d.OriginalName,
		FileType:     string(d.FileType),
		FileSize:     d.FileSize,
		Status:       string(d.Status),
		SegmentCount: d.SegmentCount,
		ErrorMessage: d.ErrorMessage,
		UploadTime:   d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// FileListResponse 文档列表
type FileListResponse struct {
	Files []*FileResponse `json:"files"`
}

// ToFileListResponse 转换文档列表
func ToFileListResponse(docs []*entity.Document) *FileListResponse {
	out := &FileListResponse{Files: make([]*FileResponse, 0, len(docs))}
	for _, d := range docs {
		out.Files = append(out.Files, ToFileResponse(d))
	}
	return out
}
