package segment

import (
	"context"
	"sort"
	"strings"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
	apperrors "chem-rag-api/pkg/errors"
	"chem-rag-api/pkg/logger"
)

const (
	// SearchLimit 关键词与标签搜索的返回上限
	SearchLimit = 50
	// TopFileStats 统计中返回的文件数
	TopFileStats = 10
	// TopTagStats 统计中返回的标签数
	TopTagStats = 20
	// DefaultKeywords 推荐时提取的关键词数
	DefaultKeywords = 10
)

// Service 分段管理：查询、删除、标签维护、搜索与统计
type Service struct {
	repo    repository.SegmentRepository
	maxTags int
}

// NewService 创建分段管理服务
func NewService(repo repository.SegmentRepository, cfg Config) *Service {
	maxTags := cfg.MaxTags
	if maxTags <= 0 {
		maxTags = DefaultConfig().MaxTags
	}
	return &Service{repo: repo, maxTags: maxTags}
}

func dbError(err error, msg string) error {
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, msg)
}

// ListByFile 文件的全部分段，按顺序排列
func (s *Service) ListByFile(ctx context.Context, fileID string) ([]*entity.Segment, error) {
	segs, err := s.repo.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, dbError(err, "failed to list segments")
	}
	return segs, nil
}

// DeleteByFile 删除文件的全部分段，返回删除数量
func (s *Service) DeleteByFile(ctx context.Context, fileID string) (int64, error) {
	n, err := s.repo.DeleteByFileID(ctx, fileID)
	if err != nil {
		return 0, dbError(err, "failed to delete segments")
	}
	logger.Info(logger.WithFileID(ctx, fileID), "segments deleted", "count", n)
	return n, nil
}

// normalizeTags 去空白、去重，保持原有顺序
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// UpdateTags 覆盖分段标签
func (s *Service) UpdateTags(ctx context.Context, segmentID string, tags []string) ([]string, error) {
	if segmentID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("segment_id is required")
	}
	tags = normalizeTags(tags)
	ok, err := s.repo.UpdateTags(ctx, segmentID, tags)
	if err != nil {
		return nil, dbError(err, "failed to update tags")
	}
	if !ok {
		return nil, apperrors.ErrSegmentNotFound.WithDetail(segmentID)
	}
	return tags, nil
}

// BatchUpdateTags 批量覆盖标签，返回实际更新的分段数
func (s *Service) BatchUpdateTags(ctx context.Context, updates []repository.TagUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, apperrors.ErrInvalidParam.WithDetail("updates is empty")
	}
	clean := make([]repository.TagUpdate, 0, len(updates))
	for _, u := range updates {
		if u.SegmentID == "" {
			return 0, apperrors.ErrInvalidParam.WithDetail("segment_id is required")
		}
		clean = append(clean, repository.TagUpdate{SegmentID: u.SegmentID, Tags: normalizeTags(u.Tags)})
	}
	n, err := s.repo.BatchUpdateTags(ctx, clean)
	if err != nil {
		return 0, dbError(err, "failed to batch update tags")
	}
	return n, nil
}

// Recommendation 标签推荐结果
type Recommendation struct {
	SegmentID       string   `json:"segment_id"`
	CurrentTags     []string `json:"current_tags"`
	RecommendedTags []string `json:"recommended_tags"`
	Keywords        []string `json:"keywords"`
	TextPreview     string   `json:"text_preview"`
}

// Recommend 为分段推荐标签与关键词
func (s *Service) Recommend(ctx context.Context, segmentID string) (*Recommendation, error) {
	seg, err := s.repo.GetByID(ctx, segmentID)
	if err != nil {
		return nil, dbError(err, "failed to load segment")
	}
	if seg == nil {
		return nil, apperrors.ErrSegmentNotFound.WithDetail(segmentID)
	}

	current := []string(seg.Tags)
	if current == nil {
		current = []string{}
	}
	return &Recommendation{
		SegmentID:       seg.ID,
		CurrentTags:     current,
		RecommendedTags: RecommendTags(seg.Text, s.maxTags),
		Keywords:        ExtractKeywords(seg.Text, DefaultKeywords),
		TextPreview:     seg.Preview(entity.PreviewLength),
	}, nil
}

// SearchByKeyword 文本包含关键词的分段
func (s *Service) SearchByKeyword(ctx context.Context, keyword string) ([]*entity.Segment, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("keyword is required")
	}
	segs, err := s.repo.SearchByKeyword(ctx, keyword, SearchLimit)
	if err != nil {
		return nil, dbError(err, "failed to search segments")
	}
	return segs, nil
}

// SearchByTags 含任一标签的分段
func (s *Service) SearchByTags(ctx context.Context, tags []string) ([]*entity.Segment, error) {
	tags = normalizeTags(tags)
	if len(tags) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("tags is required")
	}
	segs, err := s.repo.GetByTags(ctx, tags, SearchLimit)
	if err != nil {
		return nil, dbError(err, "failed to search segments by tags")
	}
	return segs, nil
}

// Stats 分段统计：文件按分段数取前 10，标签按次数取前 20
func (s *Service) Stats(ctx context.Context) (*entity.SegmentStats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, dbError(err, "failed to load segment stats")
	}

	sort.SliceStable(st.FileStats, func(i, j int) bool {
		return st.FileStats[i].SegmentCount > st.FileStats[j].SegmentCount
	})
	sort.SliceStable(st.TagStats, func(i, j int) bool {
		return st.TagStats[i].Count > st.TagStats[j].Count
	})
	if len(st.FileStats) > TopFileStats {
		st.FileStats = st.FileStats[:TopFileStats]
	}
	if len(st.TagStats) > TopTagStats {
		st.TagStats = st.TagStats[:TopTagStats]
	}
	if st.FileStats == nil {
		st.FileStats = []entity.FileStat{}
	}
	if st.TagStats == nil {
		st.TagStats = []entity.TagStat{}
	}
	return st, nil
}
