// Package vectorstore 提供按文档划分的本地向量索引：内存缓存 + 磁盘持久化
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/pkg/logger"
	"chem-rag-api/pkg/metrics"
)

var tracer = otel.Tracer("vectorstore")

var (
	// ErrIndexCorrupt 持久化文件不可读或向量与元数据数量不一致
	ErrIndexCorrupt = errors.New("vectorstore: index corrupt")
	// ErrDimensionMismatch 维度不一致
	ErrDimensionMismatch = errors.New("vectorstore: dimension mismatch")
	// ErrLengthMismatch 向量与元数据数量不一致
	ErrLengthMismatch = errors.New("vectorstore: vectors and metadata length mismatch")
	// ErrInvalidFileID file_id 为空或含非法字符
	ErrInvalidFileID = errors.New("vectorstore: invalid file_id")
)

var fileIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-.]{0,127}$`)

// fileIndex 缓存条目，创建后不再修改
type fileIndex struct {
	index *FlatIndex
	meta  []entity.VectorMetadata
	// stamp 加载或写入时向量文件的状态，其他进程改写或删除后与磁盘不再一致
	stamp os.FileInfo
}

// Store 向量索引仓储
type Store struct {
	dir    string
	dim    int
	metric Metric

	mu    sync.RWMutex
	cache map[string]*fileIndex

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex

	group singleflight.Group
}

// NewStore 创建索引仓储，dim 为新建索引的默认维度
func NewStore(cfg *config.VectorIndexConfig, dim int) (*Store, error) {
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension: %d", dim)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "data/vector_indices"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &Store{
		dir:    dir,
		dim:    dim,
		metric: metric,
		cache:  make(map[string]*fileIndex),
		locks:  make(map[string]*sync.RWMutex),
	}, nil
}

// Dimension 新建索引的维度
func (s *Store) Dimension() int { return s.dim }

// Metric 新建索引的度量
func (s *Store) Metric() Metric { return s.metric }

// Dir 索引目录
func (s *Store) Dir() string { return s.dir }

// Create 创建空索引
func (s *Store) Create(dim int) *FlatIndex {
	if dim <= 0 {
		dim = s.dim
	}
	return NewFlatIndex(dim, s.metric)
}

func validateFileID(fileID string) error {
	if !fileIDPattern.MatchString(fileID) || fileID == "." || fileID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidFileID, fileID)
	}
	return nil
}

func (s *Store) fileLock(fileID string) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[fileID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[fileID] = l
	}
	return l
}

// cached 返回与磁盘一致的缓存条目；向量文件被替换或删除时丢弃该条目
func (s *Store) cached(fileID string) (*fileIndex, bool) {
	s.mu.RLock()
	fi, ok := s.cache[fileID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !s.matchesDisk(fileID, fi) {
		s.dropStale(fileID, fi)
		return nil, false
	}
	return fi, true
}

func (s *Store) matchesDisk(fileID string, fi *fileIndex) bool {
	if fi.stamp == nil {
		return false
	}
	st, err := os.Stat(s.vectorPath(fileID))
	if err != nil {
		return false
	}
	return os.SameFile(fi.stamp, st) &&
		st.Size() == fi.stamp.Size() &&
		st.ModTime().Equal(fi.stamp.ModTime())
}

// dropStale 只在缓存仍指向同一条目时删除，避免覆盖并发加载的新条目
func (s *Store) dropStale(fileID string, fi *fileIndex) {
	s.mu.Lock()
	if cur, ok := s.cache[fileID]; ok && cur == fi {
		delete(s.cache, fileID)
	}
	n := len(s.cache)
	s.mu.Unlock()
	metrics.IndexCachedFiles.Set(float64(n))
}

func (s *Store) setCached(fileID string, fi *fileIndex) {
	s.mu.Lock()
	if fi == nil {
		delete(s.cache, fileID)
	} else {
		s.cache[fileID] = fi
	}
	n := len(s.cache)
	s.mu.Unlock()
	metrics.IndexCachedFiles.Set(float64(n))
}

// get 先查缓存再读盘，索引不存在返回 nil, nil
// 缓存命中前会比对向量文件状态，其他进程的写入与删除在下一次读取时生效
func (s *Store) get(fileID string) (*fileIndex, error) {
	if fi, ok := s.cached(fileID); ok {
		return fi, nil
	}

	v, err, _ := s.group.Do(fileID, func() (interface{}, error) {
		if fi, ok := s.cached(fileID); ok {
			return fi, nil
		}
		l := s.fileLock(fileID)
		l.RLock()
		defer l.RUnlock()

		fi, err := s.load(fileID)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return (*fileIndex)(nil), nil
			}
			return nil, err
		}
		s.setCached(fileID, fi)
		return fi, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*fileIndex), nil
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IndexOperationsTotal.WithLabelValues(op, status).Inc()
	metrics.IndexOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// AddVectors 追加向量与元数据并立即持久化；索引不存在时自动创建
func (s *Store) AddVectors(ctx context.Context, fileID string, vectors [][]float32, metas []entity.VectorMetadata) (err error) {
	ctx, span := tracer.Start(ctx, "vectorstore.AddVectors",
		trace.WithAttributes(attribute.String("file_id", fileID), attribute.Int("count", len(vectors))))
	defer span.End()
	start := time.Now()
	defer func() {
		observe("add", start, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := validateFileID(fileID); err != nil {
		return err
	}
	if len(vectors) != len(metas) {
		return fmt.Errorf("%w: %d vectors, %d metadata", ErrLengthMismatch, len(vectors), len(metas))
	}
	if len(vectors) == 0 {
		return nil
	}

	l := s.fileLock(fileID)
	l.Lock()
	defer l.Unlock()

	return s.appendLocked(ctx, fileID, vectors, metas)
}

// Replace 删除已有索引后重新写入，整个过程持有文件写锁
func (s *Store) Replace(ctx context.Context, fileID string, vectors [][]float32, metas []entity.VectorMetadata) (err error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Replace",
		trace.WithAttributes(attribute.String("file_id", fileID), attribute.Int("count", len(vectors))))
	defer span.End()
	start := time.Now()
	defer func() {
		observe("replace", start, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := validateFileID(fileID); err != nil {
		return err
	}
	if len(vectors) != len(metas) {
		return fmt.Errorf("%w: %d vectors, %d metadata", ErrLengthMismatch, len(vectors), len(metas))
	}

	l := s.fileLock(fileID)
	l.Lock()
	defer l.Unlock()

	s.setCached(fileID, nil)
	if _, err := s.removeArtifacts(fileID); err != nil {
		return fmt.Errorf("remove old index: %w", err)
	}
	if len(vectors) == 0 {
		return nil
	}
	return s.appendLocked(ctx, fileID, vectors, metas)
}

func (s *Store) appendLocked(ctx context.Context, fileID string, vectors [][]float32, metas []entity.VectorMetadata) error {
	cur, ok := s.cached(fileID)
	if !ok {
		loaded, err := s.load(fileID)
		switch {
		case err == nil:
			cur = loaded
		case errors.Is(err, os.ErrNotExist):
			dim := len(vectors[0])
			if dim != s.dim {
				return fmt.Errorf("%w: vectors have %d, store expects %d", ErrDimensionMismatch, dim, s.dim)
			}
			cur = &fileIndex{index: s.Create(dim)}
		default:
			return err
		}
	}

	idx, err := cur.index.withAdded(vectors)
	if err != nil {
		return err
	}
	meta := make([]entity.VectorMetadata, 0, len(cur.meta)+len(metas))
	meta = append(meta, cur.meta...)
	meta = append(meta, metas...)
	next := &fileIndex{index: idx, meta: meta}

	if err := s.persist(fileID, next); err != nil {
		// 磁盘状态未知，丢弃缓存以便下次重新加载
		s.setCached(fileID, nil)
		return err
	}
	if st, err := os.Stat(s.vectorPath(fileID)); err == nil {
		next.stamp = st
		s.setCached(fileID, next)
	} else {
		s.setCached(fileID, nil)
	}

	logger.Info(ctx, "vectors added to index",
		"file_id", fileID,
		"added", len(vectors),
		"total", idx.Len(),
	)
	return nil
}

// Search 检索单个文件索引；索引不存在或为空时返回空结果
func (s *Store) Search(ctx context.Context, fileID string, query []float32, topK int) (hits []entity.SearchHit, err error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Search",
		trace.WithAttributes(attribute.String("file_id", fileID), attribute.Int("top_k", topK)))
	defer span.End()
	start := time.Now()
	defer func() {
		observe("search", start, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := validateFileID(fileID); err != nil {
		return nil, err
	}
	fi, err := s.get(fileID)
	if err != nil {
		return nil, err
	}
	if fi == nil || fi.index.Len() == 0 {
		return []entity.SearchHit{}, nil
	}

	rows, err := fi.index.Search(query, topK)
	if err != nil {
		return nil, err
	}
	hits = make([]entity.SearchHit, len(rows))
	for i, r := range rows {
		hits[i] = entity.SearchHit{
			Rank:       i + 1,
			Similarity: r.score,
			Metadata:   fi.meta[r.row],
		}
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

// SearchMultipleFiles 分别检索多个文件，单个文件失败时该文件结果为空
func (s *Store) SearchMultipleFiles(ctx context.Context, fileIDs []string, query []float32, topK int) map[string][]entity.SearchHit {
	out := make(map[string][]entity.SearchHit, len(fileIDs))
	for _, id := range fileIDs {
		hits, err := s.Search(ctx, id, query, topK)
		if err != nil {
			logger.Warn(ctx, "search file index failed", "file_id", id, "error", err)
			hits = []entity.SearchHit{}
		}
		out[id] = hits
	}
	return out
}

// IndexExists 以磁盘文件为准判断索引是否存在
func (s *Store) IndexExists(fileID string) bool {
	if validateFileID(fileID) != nil {
		return false
	}
	_, err := os.Stat(s.vectorPath(fileID))
	return err == nil
}

// DeleteIndex 移出缓存并删除磁盘文件；索引本就不存在时返回 false, nil
func (s *Store) DeleteIndex(ctx context.Context, fileID string) (removed bool, err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()

	if err := validateFileID(fileID); err != nil {
		return false, err
	}
	l := s.fileLock(fileID)
	l.Lock()
	defer l.Unlock()

	s.setCached(fileID, nil)
	removed, err = s.removeArtifacts(fileID)
	if err != nil {
		return removed, err
	}
	logger.Info(ctx, "index deleted", "file_id", fileID, "removed", removed)
	return removed, nil
}

// GetIndexInfo 索引统计信息，读取失败时只返回文件层面的信息
func (s *Store) GetIndexInfo(ctx context.Context, fileID string) entity.IndexInfo {
	info := entity.IndexInfo{FileID: fileID}
	if validateFileID(fileID) != nil {
		return info
	}
	vst, err := os.Stat(s.vectorPath(fileID))
	if err != nil {
		return info
	}
	info.Exists = true
	info.IndexSize = vst.Size()
	info.ModifiedAt = vst.ModTime()
	if mst, err := os.Stat(s.metadataPath(fileID)); err == nil {
		info.MetaSize = mst.Size()
	}

	fi, err := s.get(fileID)
	if err != nil {
		logger.Warn(ctx, "load index for info failed", "file_id", fileID, "error", err)
		return info
	}
	if fi != nil {
		info.VectorCount = fi.index.Len()
		info.Dimension = fi.index.Dim()
		info.Metric = string(fi.index.Metric())
	}
	return info
}

// Verify 绕过缓存重新读盘，校验向量与元数据对齐，返回向量数
func (s *Store) Verify(ctx context.Context, fileID string) (int, error) {
	if err := validateFileID(fileID); err != nil {
		return 0, err
	}
	l := s.fileLock(fileID)
	l.RLock()
	defer l.RUnlock()

	fi, err := s.load(fileID)
	if err != nil {
		return 0, err
	}
	for i, m := range fi.meta {
		if m.FileID != "" && m.FileID != fileID {
			return 0, fmt.Errorf("%w: metadata %d belongs to %q", ErrIndexCorrupt, i, m.FileID)
		}
	}
	logger.Debug(ctx, "index verified", "file_id", fileID, "vectors", fi.index.Len())
	return fi.index.Len(), nil
}

// ListAllIndices 扫描索引目录并返回每个索引的信息
func (s *Store) ListAllIndices(ctx context.Context) []entity.IndexInfo {
	ids := s.ListFileIDs(ctx)
	out := make([]entity.IndexInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.GetIndexInfo(ctx, id))
	}
	return out
}

// ListFileIDs 返回所有已持久化索引的 file_id，按名称排序
func (s *Store) ListFileIDs(ctx context.Context) []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.Warn(ctx, "list index dir failed", "dir", s.dir, "error", err)
		return []string{}
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := fileIDFromArtifact(e.Name()); ok && validateFileID(id) == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ClearCache 清空缓存；指定 fileID 时只清理该文件
func (s *Store) ClearCache(fileIDs ...string) {
	s.mu.Lock()
	if len(fileIDs) == 0 {
		s.cache = make(map[string]*fileIndex)
	} else {
		for _, id := range fileIDs {
			delete(s.cache, id)
		}
	}
	n := len(s.cache)
	s.mu.Unlock()
	metrics.IndexCachedFiles.Set(float64(n))
}
