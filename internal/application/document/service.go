// Package document 管理上传文档：存储、元数据、解析预览与删除。
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
	"chem-rag-api/internal/infrastructure/parsing"
	apperrors "chem-rag-api/pkg/errors"
	"chem-rag-api/pkg/logger"
)

// PreviewLength 解析预览的字符数
const PreviewLength = 500

// IndexRemover 删除文档对应的向量索引
type IndexRemover interface {
	DeleteIndex(ctx context.Context, fileID string) (bool, error)
}

// TextExtractor 文档文本提取
type TextExtractor interface {
	Parse(ctx context.Context, path string, fileType entity.FileType) (*parsing.Result, error)
}

// Service 文档服务
type Service struct {
	docs     repository.DocumentRepository
	segments repository.SegmentRepository
	index    IndexRemover
	parser   TextExtractor
	cfg      config.StorageConfig
}

// NewService 创建文档服务
func NewService(docs repository.DocumentRepository, segments repository.SegmentRepository, index IndexRemover, parser TextExtractor, cfg config.StorageConfig) *Service {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 50 << 20
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = []string{"pdf", "docx", "txt"}
	}
	return &Service{docs: docs, segments: segments, index: index, parser: parser, cfg: cfg}
}

// MaxUploadSize 单个文件大小上限（字节）
func (s *Service) MaxUploadSize() int64 { return s.cfg.MaxUploadSize }

func (s *Service) allowed(ft entity.FileType) bool {
	return ft != "" && slices.Contains(s.cfg.AllowedTypes, string(ft))
}

// Upload 校验类型与大小后以 uuid 命名保存文件并登记元数据
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (*entity.Document, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return nil, apperrors.ErrInvalidParam.WithDetail("file name is required")
	}
	ft := entity.FileTypeFromName(name)
	if !s.allowed(ft) {
		return nil, apperrors.ErrUnsupportedType.WithDetail(fmt.Sprintf("仅支持 %s 格式", strings.Join(s.cfg.AllowedTypes, "/")))
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to prepare upload dir")
	}

	id := uuid.NewString()
	path := filepath.Join(s.cfg.UploadDir, id+"."+string(ft))
	ctx = logger.WithFileID(ctx, id)

	size, err := s.store(path, r)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc := &entity.Document{
		ID:           id,
		OriginalName: name,
		StoredPath:   path,
		FileType:     ft,
		FileSize:     size,
		Status:       entity.DocumentStatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		_ = os.Remove(path)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save document")
	}

	logger.Info(ctx, "document uploaded", "name", name, "type", ft, "size", size)
	return doc, nil
}

// store 写入文件，超过上限时删除已写内容
func (s *Service) store(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to create file")
	}
	n, err := io.Copy(f, io.LimitReader(r, s.cfg.MaxUploadSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to write file")
	}
	if n > s.cfg.MaxUploadSize {
		_ = os.Remove(path)
		return 0, apperrors.New(apperrors.CodePayloadTooLarge, "文件过大").
			WithDetail(fmt.Sprintf("max %d bytes", s.cfg.MaxUploadSize))
	}
	if n == 0 {
		_ = os.Remove(path)
		return 0, apperrors.ErrInvalidParam.WithDetail("文件内容为空")
	}
	return n, nil
}

// Get 查询文档
func (s *Service) Get(ctx context.Context, id string) (*entity.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load document")
	}
	if doc == nil {
		return nil, apperrors.ErrDocumentNotFound.WithDetail(id)
	}
	return doc, nil
}

// List 分页列出文档
func (s *Service) List(ctx context.Context, filter *repository.DocumentFilter, p repository.Pagination) (*repository.PagedResult[*entity.Document], error) {
	res, err := s.docs.List(ctx, filter, p)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list documents")
	}
	return res, nil
}

// DownloadPath 返回文档及其存储路径
func (s *Service) DownloadPath(ctx context.Context, id string) (*entity.Document, string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(doc.StoredPath); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.CodeFileNotFound, "stored file is missing")
	}
	return doc, doc.StoredPath, nil
}

// DeleteResult 删除结果
type DeleteResult struct {
	FileID          string `json:"file_id"`
	SegmentsDeleted int64  `json:"segments_deleted"`
	IndexDeleted    bool   `json:"index_deleted"`
	FileDeleted     bool   `json:"file_deleted"`
}

// Delete 删除文档及其文件、分段和索引；附属数据清理失败只记录日志
func (s *Service) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFileID(ctx, id)
	res := &DeleteResult{FileID: id}

	if n, err := s.segments.DeleteByFileID(ctx, id); err != nil {
		logger.Warn(ctx, "failed to delete segments", "error", err)
	} else {
		res.SegmentsDeleted = n
	}

	if removed, err := s.index.DeleteIndex(ctx, id); err != nil {
		logger.Warn(ctx, "failed to delete index", "error", err)
	} else {
		res.IndexDeleted = removed
	}

	if err := os.Remove(doc.StoredPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn(ctx, "failed to remove stored file", "path", doc.StoredPath, "error", err)
	} else {
		res.FileDeleted = err == nil
	}

	if err := s.docs.Delete(ctx, id); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete document")
	}

	logger.Info(ctx, "document deleted",
		"segments", res.SegmentsDeleted,
		"index", res.IndexDeleted,
	)
	return res, nil
}

// Stats 文档统计
type Stats struct {
	TotalFiles int64                         `json:"total_files"`
	TotalSize  int64                         `json:"total_size"`
	ByType     []repository.DocumentTypeStat `json:"by_type"`
}

// Stats 按类型汇总文档数量与大小
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.docs.StatsByType(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load stats")
	}
	st := &Stats{ByType: rows}
	for _, r := range rows {
		st.TotalFiles += r.Count
		st.TotalSize += r.TotalSize
	}
	if st.ByType == nil {
		st.ByType = []repository.DocumentTypeStat{}
	}
	return st, nil
}

// ParseResult 解析结果
type ParseResult struct {
	FileID         string          `json:"file_id"`
	OriginalName   string          `json:"original_name"`
	FileType       entity.FileType `json:"file_type"`
	PageCount      int             `json:"page_count,omitempty"`
	ParagraphCount int             `json:"paragraph_count,omitempty"`
	Encoding       string          `json:"encoding,omitempty"`
	Summary        parsing.Summary `json:"summary"`
	Preview        string          `json:"text_preview"`
}

// Parse 提取文档文本并返回统计与预览，成功后文档进入 parsed 状态
func (s *Service) Parse(ctx context.Context, id string) (*ParseResult, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFileID(ctx, id)

	res, err := s.parser.Parse(ctx, doc.StoredPath, doc.FileType)
	if err != nil {
		doc.MarkFailed(err.Error())
		if uerr := s.docs.Update(ctx, doc); uerr != nil {
			logger.Warn(ctx, "failed to record parse failure", "error", uerr)
		}
		if errors.Is(err, parsing.ErrFileNotFound) {
			return nil, apperrors.Wrap(err, apperrors.CodeFileNotFound, "stored file is missing")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeParseFailed, "文档解析失败")
	}

	if doc.Status == entity.DocumentStatusUploaded || doc.Status == entity.DocumentStatusFailed {
		doc.Status = entity.DocumentStatusParsed
		doc.ErrorMessage = ""
		if err := s.docs.Update(ctx, doc); err != nil {
			logger.Warn(ctx, "failed to mark document parsed", "error", err)
		}
	}

	return &ParseResult{
		FileID:         doc.ID,
		OriginalName:   doc.OriginalName,
		FileType:       doc.FileType,
		PageCount:      res.PageCount,
		ParagraphCount: res.ParagraphCount,
		Encoding:       res.Encoding,
		Summary:        parsing.Summarize(res.Text),
		Preview:        parsing.Preview(res.Text, PreviewLength),
	}, nil
}
