// Package indexing 编排文档分段与向量索引构建，包括同步构建、异步入队和 worker 侧处理。
package indexing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"chem-rag-api/internal/application/segment"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
	"chem-rag-api/internal/infrastructure/messaging"
	"chem-rag-api/internal/infrastructure/parsing"
	"chem-rag-api/internal/infrastructure/persistence/redis"
	apperrors "chem-rag-api/pkg/errors"
	"chem-rag-api/pkg/logger"
)

var tracer = otel.Tracer("indexing")

// MsgIndexExists 非重建模式下索引已存在时的提示
const MsgIndexExists = "索引已存在，无需重新创建"

// MsgSegmentationEmpty 分段结果为空时的提示
const MsgSegmentationEmpty = "文档分段失败，可能文档内容为空或格式不支持"

// DefaultBatchSize 未指定时的向量化批大小
const DefaultBatchSize = 32

// IndexStore 向量索引存储
type IndexStore interface {
	IndexExists(fileID string) bool
	AddVectors(ctx context.Context, fileID string, vectors [][]float32, metas []entity.VectorMetadata) error
	Replace(ctx context.Context, fileID string, vectors [][]float32, metas []entity.VectorMetadata) error
	DeleteIndex(ctx context.Context, fileID string) (bool, error)
	GetIndexInfo(ctx context.Context, fileID string) entity.IndexInfo
	ListAllIndices(ctx context.Context) []entity.IndexInfo
}

// SegmentEncoder 分段向量化
type SegmentEncoder interface {
	EncodeSegments(ctx context.Context, segments []*entity.Segment, fileName string, batchSize int) ([][]float32, []entity.VectorMetadata, error)
	Dimension() int
	ModelName() string
}

// TextExtractor 文档文本提取
type TextExtractor interface {
	Parse(ctx context.Context, path string, fileType entity.FileType) (*parsing.Result, error)
}

// JobPublisher 异步任务发布
type JobPublisher interface {
	PublishIndexBuild(ctx context.Context, job *messaging.IndexBuildMessage) (string, error)
}

// BuildLocker 跨进程构建锁；等待超时返回 redis.ErrLockTimeout
type BuildLocker interface {
	Acquire(ctx context.Context, fileID string) (release func(), err error)
}

// ErrBuildInProgress 其他进程正在构建同一文件的索引
var ErrBuildInProgress = apperrors.New(apperrors.CodeConflict, "索引正在由其他任务构建，请稍后重试")

// Deps 服务依赖
type Deps struct {
	Documents  repository.DocumentRepository
	Segments   repository.SegmentRepository
	Jobs       repository.JobRepository
	Tx         repository.Transactor
	Parser     TextExtractor
	Segmenter  *segment.Segmenter
	Encoder    SegmentEncoder
	Store      IndexStore
	Publisher  JobPublisher
	// Locker 为空时只在进程内互斥
	Locker     BuildLocker
	BatchSize  int
	MaxRetries int
}

// Service 分段与索引构建服务
type Service struct {
	docs       repository.DocumentRepository
	segments   repository.SegmentRepository
	jobs       repository.JobRepository
	tx         repository.Transactor
	parser     TextExtractor
	segmenter  *segment.Segmenter
	encoder    SegmentEncoder
	store      IndexStore
	publisher  JobPublisher
	locker     BuildLocker
	batchSize  int
	maxRetries int

	builds singleflight.Group

	buildMu    sync.Mutex
	buildLocks map[string]*sync.Mutex
}

// NewService 创建服务；Publisher 与 Jobs 为空时不支持异步构建
func NewService(d Deps) *Service {
	if d.BatchSize <= 0 {
		d.BatchSize = DefaultBatchSize
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = 3
	}
	return &Service{
		docs:       d.Documents,
		segments:   d.Segments,
		jobs:       d.Jobs,
		tx:         d.Tx,
		parser:     d.Parser,
		segmenter:  d.Segmenter,
		encoder:    d.Encoder,
		store:      d.Store,
		publisher:  d.Publisher,
		locker:     d.Locker,
		batchSize:  d.BatchSize,
		maxRetries: d.MaxRetries,
		buildLocks: make(map[string]*sync.Mutex),
	}
}

// SegmentResult 分段结果
type SegmentResult struct {
	FileID       string            `json:"file_id"`
	FileName     string            `json:"file_name"`
	SegmentCount int               `json:"segment_count"`
	Segments     []*entity.Segment `json:"segments"`
}

// BuildResult 索引构建结果
type BuildResult struct {
	FileID         string           `json:"file_id"`
	EmbeddedCount  int              `json:"embedded_count"`
	Dimension      int              `json:"embedding_dimension"`
	EmbeddingModel string           `json:"embedding_model"`
	ProcessingTime float64          `json:"processing_time"`
	IndexInfo      entity.IndexInfo `json:"index_info"`
	Created        bool             `json:"created"`
	Message        string           `json:"message,omitempty"`
}

func (s *Service) document(ctx context.Context, fileID string) (*entity.Document, error) {
	if fileID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("file_id is required")
	}
	doc, err := s.docs.GetByID(ctx, fileID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load document")
	}
	if doc == nil {
		return nil, apperrors.ErrDocumentNotFound.WithDetail(fileID)
	}
	return doc, nil
}

// parseError 将解析错误映射为应用错误
func parseError(err error) error {
	switch {
	case errors.Is(err, parsing.ErrFileNotFound):
		return apperrors.Wrap(err, apperrors.CodeFileNotFound, "stored file is missing")
	case errors.Is(err, parsing.ErrUnsupportedType):
		return apperrors.ErrUnsupportedType.WithError(err)
	default:
		return apperrors.Wrap(err, apperrors.CodeParseFailed, "文档解析失败")
	}
}

// SegmentDocument 解析并分段文档；已有分段会被整体替换
func (s *Service) SegmentDocument(ctx context.Context, fileID string) (*SegmentResult, error) {
	ctx, span := tracer.Start(ctx, "indexing.SegmentDocument")
	defer span.End()
	span.SetAttributes(attribute.String("file_id", fileID))
	ctx = logger.WithFileID(ctx, fileID)

	doc, err := s.document(ctx, fileID)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parser.Parse(ctx, doc.StoredPath, doc.FileType)
	if err != nil {
		s.markFailed(ctx, doc, err.Error())
		return nil, parseError(err)
	}

	segs, err := s.segmenter.Segment(ctx, fileID, parsed.Text)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSegmentationFailed, MsgSegmentationEmpty)
	}
	if len(segs) == 0 {
		s.markFailed(ctx, doc, MsgSegmentationEmpty)
		return nil, apperrors.New(apperrors.CodeSegmentationFailed, MsgSegmentationEmpty)
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		removed, err := s.segments.DeleteByFileID(ctx, fileID)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info(ctx, "existing segments replaced", "removed", removed)
		}
		if err := s.segments.SaveSegments(ctx, segs); err != nil {
			return err
		}
		doc.MarkSegmented(len(segs))
		return s.docs.Update(ctx, doc)
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "保存分段数据到数据库失败")
	}

	return &SegmentResult{
		FileID:       fileID,
		FileName:     doc.OriginalName,
		SegmentCount: len(segs),
		Segments:     segs,
	}, nil
}

func (s *Service) markFailed(ctx context.Context, doc *entity.Document, msg string) {
	doc.MarkFailed(msg)
	if err := s.docs.Update(ctx, doc); err != nil {
		logger.Warn(ctx, "failed to record document failure", "error", err)
	}
}

// BuildIndex 为文件构建向量索引。相同参数的并发请求共享一次执行，
// 不同参数的构建在文件锁下串行，索引是否存在在持锁后判断
func (s *Service) BuildIndex(ctx context.Context, fileID string, recreate bool, batchSize int) (*BuildResult, error) {
	key := fmt.Sprintf("%s:%t", fileID, recreate)
	v, err, shared := s.builds.Do(key, func() (interface{}, error) {
		release, err := s.lockBuild(ctx, fileID)
		if err != nil {
			return nil, err
		}
		defer release()
		return s.buildIndex(ctx, fileID, recreate, batchSize)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug(ctx, "index build shared with in-flight request", "file_id", fileID)
	}
	res := *v.(*BuildResult)
	return &res, nil
}

// lockBuild 先取进程内文件锁，再取跨进程锁。
// Redis 不可用时退化为进程内互斥，等待超时返回 ErrBuildInProgress
func (s *Service) lockBuild(ctx context.Context, fileID string) (func(), error) {
	s.buildMu.Lock()
	mu, ok := s.buildLocks[fileID]
	if !ok {
		mu = &sync.Mutex{}
		s.buildLocks[fileID] = mu
	}
	s.buildMu.Unlock()

	mu.Lock()
	if s.locker == nil {
		return mu.Unlock, nil
	}

	release, err := s.locker.Acquire(ctx, fileID)
	switch {
	case err == nil:
		return func() {
			release()
			mu.Unlock()
		}, nil
	case errors.Is(err, redis.ErrLockTimeout):
		mu.Unlock()
		return nil, ErrBuildInProgress.WithDetail(fileID)
	case ctx.Err() != nil:
		mu.Unlock()
		return nil, ctx.Err()
	default:
		logger.Warn(ctx, "build lock unavailable, falling back to process lock", "file_id", fileID, "error", err)
		return mu.Unlock, nil
	}
}

func (s *Service) buildIndex(ctx context.Context, fileID string, recreate bool, batchSize int) (*BuildResult, error) {
	ctx, span := tracer.Start(ctx, "indexing.BuildIndex")
	defer span.End()
	span.SetAttributes(
		attribute.String("file_id", fileID),
		attribute.Bool("recreate", recreate),
	)
	ctx = logger.WithFileID(ctx, fileID)

	start := time.Now()
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	doc, err := s.document(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if !recreate && s.store.IndexExists(fileID) {
		info := s.store.GetIndexInfo(ctx, fileID)
		logger.Info(ctx, "index already exists", "vectors", info.VectorCount)
		return &BuildResult{
			FileID:         fileID,
			EmbeddedCount:  info.VectorCount,
			Dimension:      info.Dimension,
			EmbeddingModel: s.encoder.ModelName(),
			ProcessingTime: seconds(time.Since(start)),
			IndexInfo:      info,
			Message:        MsgIndexExists,
		}, nil
	}

	segs, err := s.segments.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load segments")
	}
	if len(segs) == 0 {
		return nil, apperrors.ErrNoSegments.WithDetail(fmt.Sprintf("文件 %s 没有可用的段落数据", fileID))
	}

	vecs, metas, err := s.encoder.EncodeSegments(ctx, segs, doc.OriginalName, batchSize)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "向量生成失败")
	}

	if recreate {
		err = s.store.Replace(ctx, fileID, vecs, metas)
	} else {
		err = s.store.AddVectors(ctx, fileID, vecs, metas)
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeIndexBuildFailed, "向量存储失败")
	}

	doc.Status = entity.DocumentStatusIndexed
	if err := s.docs.Update(ctx, doc); err != nil {
		logger.Warn(ctx, "failed to mark document indexed", "error", err)
	}

	info := s.store.GetIndexInfo(ctx, fileID)
	elapsed := time.Since(start)
	logger.Info(ctx, "index built",
		"vectors", len(vecs),
		"recreate", recreate,
		"duration_ms", elapsed.Milliseconds(),
	)
	return &BuildResult{
		FileID:         fileID,
		EmbeddedCount:  len(vecs),
		Dimension:      s.encoder.Dimension(),
		EmbeddingModel: s.encoder.ModelName(),
		ProcessingTime: seconds(elapsed),
		IndexInfo:      info,
		Created:        true,
	}, nil
}

// GetIndexInfo 查询索引信息
func (s *Service) GetIndexInfo(ctx context.Context, fileID string) (entity.IndexInfo, error) {
	info := s.store.GetIndexInfo(ctx, fileID)
	if !info.Exists {
		return info, apperrors.ErrIndexNotFound.WithDetail(fileID)
	}
	return info, nil
}

// DeleteIndex 删除索引，文档状态回退为已分段
func (s *Service) DeleteIndex(ctx context.Context, fileID string) error {
	removed, err := s.store.DeleteIndex(ctx, fileID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageError, "failed to delete index")
	}
	if !removed {
		return apperrors.ErrIndexNotFound.WithDetail(fileID)
	}

	doc, err := s.docs.GetByID(ctx, fileID)
	if err == nil && doc != nil && doc.Status == entity.DocumentStatusIndexed {
		doc.Status = entity.DocumentStatusSegmented
		if err := s.docs.Update(ctx, doc); err != nil {
			logger.Warn(ctx, "failed to reset document status", "file_id", fileID, "error", err)
		}
	}
	return nil
}

// ListIndices 列出全部索引
func (s *Service) ListIndices(ctx context.Context) []entity.IndexInfo {
	return s.store.ListAllIndices(ctx)
}

// EmbeddingHealth 向量化服务状态
type EmbeddingHealth struct {
	Status           string `json:"status"`
	EmbeddingModel   string `json:"embedding_model"`
	Dimension        int    `json:"embedding_dimension"`
	PrimaryAvailable bool   `json:"primary_available"`
	TotalIndices     int    `json:"total_indices"`
}

// Health 汇总向量化与索引状态
func (s *Service) Health(ctx context.Context, primaryAvailable bool) EmbeddingHealth {
	return EmbeddingHealth{
		Status:           "healthy",
		EmbeddingModel:   s.encoder.ModelName(),
		Dimension:        s.encoder.Dimension(),
		PrimaryAvailable: primaryAvailable,
		TotalIndices:     len(s.store.ListAllIndices(ctx)),
	}
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
