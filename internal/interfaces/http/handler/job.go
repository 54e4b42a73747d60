package handler

import (
	"github.com/gin-gonic/gin"

	"chem-rag-api/internal/application/indexing"
	"chem-rag-api/internal/interfaces/http/dto"
)

// JobHandler 任务处理器
type JobHandler struct {
	indexing *indexing.Service
}

// NewJobHandler 创建任务处理器
func NewJobHandler(indexing *indexing.Service) *JobHandler {
	return &JobHandler{indexing: indexing}
}

// GetJob 获取任务详情
// @Summary 获取任务详情
// @Description 获取索引构建任务的状态、进度与结果
// @Tags Jobs
// @Produce json
// @Param job_id path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/jobs/{job_id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.indexing.GetJob(c.Request.Context(), dto.BindJobID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToJobResponse(job))
}
