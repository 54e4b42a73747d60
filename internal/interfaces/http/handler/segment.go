package handler

import (
	"github.com/gin-gonic/gin"

	"chem-rag-api/internal/application/indexing"
	"chem-rag-api/internal/application/segment"
	"chem-rag-api/internal/interfaces/http/dto"
	"chem-rag-api/pkg/errors"
)

// SegmentHandler 分段处理器
type SegmentHandler struct {
	indexing *indexing.Service
	segments *segment.Service
}

// NewSegmentHandler 创建分段处理器
func NewSegmentHandler(indexing *indexing.Service, segments *segment.Service) *SegmentHandler {
	return &SegmentHandler{indexing: indexing, segments: segments}
}

// Segment 对文档分段，已有分段会被替换
// @Summary 文档分段
// @Tags Segments
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[indexing.SegmentResult]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /api/segments/{file_id} [post]
func (h *SegmentHandler) Segment(c *gin.Context) {
	res, err := h.indexing.SegmentDocument(c.Request.Context(), dto.BindFileID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.SuccessWithMessage(c, "文档分段成功", res)
}

// ListByFile 文件的全部分段
// @Summary 文件分段列表
// @Tags Segments
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[dto.SegmentListResponse]
// @Router /api/segments/file/{file_id} [get]
func (h *SegmentHandler) ListByFile(c *gin.Context) {
	fileID := dto.BindFileID(c)
	segs, err := h.segments.ListByFile(c.Request.Context(), fileID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.NewSegmentList(fileID, segs))
}

// DeleteByFile 删除文件的全部分段
// @Summary 删除文件分段
// @Tags Segments
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[dto.DeleteSegmentsResponse]
// @Router /api/segments/file/{file_id} [delete]
func (h *SegmentHandler) DeleteByFile(c *gin.Context) {
	fileID := dto.BindFileID(c)
	n, err := h.segments.DeleteByFile(c.Request.Context(), fileID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, &dto.DeleteSegmentsResponse{FileID: fileID, DeletedCount: n})
}

// UpdateTags 覆盖分段标签
// @Summary 更新分段标签
// @Tags Segments
// @Accept json
// @Produce json
// @Param body body dto.UpdateTagsRequest true "标签"
// @Success 200 {object} dto.Response[dto.UpdateTagsResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/segments/tag [post]
func (h *SegmentHandler) UpdateTags(c *gin.Context) {
	var req dto.UpdateTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.FromError(c, errors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}
	tags, err := h.segments.UpdateTags(c.Request.Context(), req.SegmentID, req.Tags)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, &dto.UpdateTagsResponse{SegmentID: req.SegmentID, Tags: tags})
}

// BatchUpdateTags 批量更新标签
// @Summary 批量更新分段标签
// @Tags Segments
// @Accept json
// @Produce json
// @Param body body dto.BatchUpdateTagsRequest true "更新列表"
// @Success 200 {object} dto.Response[dto.BatchUpdateTagsResponse]
// @Router /api/segments/tag/batch [post]
func (h *SegmentHandler) BatchUpdateTags(c *gin.Context) {
	var req dto.BatchUpdateTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.FromError(c, errors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}
	n, err := h.segments.BatchUpdateTags(c.Request.Context(), req.Updates)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, &dto.BatchUpdateTagsResponse{Requested: len(req.Updates), Updated: n})
}

// Recommend 推荐分段标签
// @Summary 标签推荐
// @Tags Segments
// @Produce json
// @Param segment_id path string true "分段 ID"
// @Success 200 {object} dto.Response[segment.Recommendation]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/segments/recommend/{segment_id} [get]
func (h *SegmentHandler) Recommend(c *gin.Context) {
	rec, err := h.segments.Recommend(c.Request.Context(), dto.BindSegmentID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, rec)
}

// Search 关键词搜索分段
// @Summary 关键词搜索
// @Tags Segments
// @Produce json
// @Param keyword query string true "关键词"
// @Success 200 {object} dto.Response[dto.SegmentListResponse]
// @Router /api/segments/search [get]
func (h *SegmentHandler) Search(c *gin.Context) {
	segs, err := h.segments.SearchByKeyword(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.NewSegmentList("", segs))
}

// SearchByTags 按标签搜索分段（任一匹配）
// @Summary 标签搜索
// @Tags Segments
// @Produce json
// @Param tags query string true "逗号分隔的标签"
// @Success 200 {object} dto.Response[dto.SegmentListResponse]
// @Router /api/segments/tags [get]
func (h *SegmentHandler) SearchByTags(c *gin.Context) {
	segs, err := h.segments.SearchByTags(c.Request.Context(), dto.SplitList(c.QueryArray("tags")))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.NewSegmentList("", segs))
}

// Stats 分段统计
// @Summary 分段统计
// @Tags Segments
// @Produce json
// @Success 200 {object} dto.Response[entity.SegmentStats]
// @Router /api/segments/stats [get]
func (h *SegmentHandler) Stats(c *gin.Context) {
	st, err := h.segments.Stats(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, st)
}
