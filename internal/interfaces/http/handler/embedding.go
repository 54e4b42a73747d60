package handler

import (
	"github.com/gin-gonic/gin"

	"chem-rag-api/internal/application/indexing"
	"chem-rag-api/internal/application/retrieval"
	"chem-rag-api/internal/interfaces/http/dto"
	"chem-rag-api/pkg/errors"
	"chem-rag-api/pkg/logger"
)

// EmbeddingHandler 向量化与检索处理器
type EmbeddingHandler struct {
	indexing  *indexing.Service
	retriever *retrieval.Retriever
}

// NewEmbeddingHandler 创建向量化处理器
func NewEmbeddingHandler(indexing *indexing.Service, retriever *retrieval.Retriever) *EmbeddingHandler {
	return &EmbeddingHandler{indexing: indexing, retriever: retriever}
}

func bindBuildRequest(c *gin.Context) (*dto.BuildIndexRequest, error) {
	var req dto.BuildIndexRequest
	if c.Request.ContentLength == 0 {
		return &req, nil
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errors.ErrInvalidParam.WithDetail(err.Error())
	}
	return &req, nil
}

// Build 同步构建索引
// @Summary 构建向量索引
// @Tags Embeddings
// @Accept json
// @Produce json
// @Param file_id path string true "文件 ID"
// @Param body body dto.BuildIndexRequest false "构建参数"
// @Success 200 {object} dto.Response[indexing.BuildResult]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/embeddings/{file_id} [post]
func (h *EmbeddingHandler) Build(c *gin.Context) {
	req, err := bindBuildRequest(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	res, err := h.indexing.BuildIndex(c.Request.Context(), dto.BindFileID(c), req.Recreate, req.BatchSize)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	msg := "向量索引构建成功"
	if !res.Created {
		msg = res.Message
	}
	dto.SuccessWithMessage(c, msg, res)
}

// BuildAsync 创建异步构建任务
// @Summary 异步构建向量索引
// @Tags Embeddings
// @Accept json
// @Produce json
// @Param file_id path string true "文件 ID"
// @Param body body dto.BuildIndexRequest false "构建参数"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/embeddings/{file_id}/async [post]
func (h *EmbeddingHandler) BuildAsync(c *gin.Context) {
	req, err := bindBuildRequest(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	job, err := h.indexing.EnqueueBuild(c.Request.Context(), dto.BindFileID(c), req.Recreate, req.BatchSize)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Accepted(c, dto.ToJobResponse(job))
}

// Info 索引信息
// @Summary 索引信息
// @Tags Embeddings
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[entity.IndexInfo]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/embeddings/info/{file_id} [get]
func (h *EmbeddingHandler) Info(c *gin.Context) {
	info, err := h.indexing.GetIndexInfo(c.Request.Context(), dto.BindFileID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, info)
}

// Delete 删除索引
// @Summary 删除向量索引
// @Tags Embeddings
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[map[string]string]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/embeddings/{file_id} [delete]
func (h *EmbeddingHandler) Delete(c *gin.Context) {
	fileID := dto.BindFileID(c)
	if err := h.indexing.DeleteIndex(c.Request.Context(), fileID); err != nil {
		dto.FromError(c, err)
		return
	}
	dto.SuccessWithMessage(c, "向量索引删除成功", gin.H{"file_id": fileID})
}

// List 全部索引
// @Summary 索引列表
// @Tags Embeddings
// @Produce json
// @Success 200 {object} dto.Response[dto.IndexListResponse]
// @Router /api/embeddings/list [get]
func (h *EmbeddingHandler) List(c *gin.Context) {
	indices := h.indexing.ListIndices(c.Request.Context())
	dto.Success(c, &dto.IndexListResponse{TotalIndices: len(indices), Indices: indices})
}

// Search 单文件语义检索，索引不存在时返回 404
// @Summary 单文件检索
// @Tags Embeddings
// @Accept json
// @Produce json
// @Param file_id path string true "文件 ID"
// @Param body body dto.SearchRequest true "检索参数"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/embeddings/search/{file_id} [post]
func (h *EmbeddingHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()
	fileID := dto.BindFileID(c)

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.FromError(c, errors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}
	if _, err := h.indexing.GetIndexInfo(ctx, fileID); err != nil {
		dto.FromError(c, err)
		return
	}

	results, err := h.retriever.RetrieveFromFile(ctx, req.Query, fileID, req.Options())
	if err != nil {
		dto.FromError(c, err)
		return
	}
	logger.Debug(ctx, "search completed", "file_id", fileID, "results", len(results))
	dto.Success(c, &dto.SearchResponse{
		Query:        req.Query,
		FileID:       fileID,
		TotalResults: len(results),
		Results:      results,
	})
}

// SearchMulti 多文件检索，结果按文件分组
// @Summary 多文件检索
// @Tags Embeddings
// @Accept json
// @Produce json
// @Param body body dto.MultiSearchRequest true "检索参数"
// @Success 200 {object} dto.Response[dto.MultiSearchResponse]
// @Router /api/embeddings/search/multi [post]
func (h *EmbeddingHandler) SearchMulti(c *gin.Context) {
	var req dto.MultiSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.FromError(c, errors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}

	grouped, err := h.retriever.RetrieveFromMultipleFiles(c.Request.Context(), req.Query, req.FileIDs, req.Options())
	if err != nil {
		dto.FromError(c, err)
		return
	}
	total := 0
	for _, rs := range grouped {
		total += len(rs)
	}
	dto.Success(c, &dto.MultiSearchResponse{
		Query:        req.Query,
		FileIDs:      req.FileIDs,
		TotalResults: total,
		Results:      grouped,
	})
}

// Health 向量化服务状态
// @Summary 向量化服务健康
// @Tags Embeddings
// @Produce json
// @Success 200 {object} dto.Response[indexing.EmbeddingHealth]
// @Router /api/embeddings/health [get]
func (h *EmbeddingHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	st := h.retriever.Status(ctx)
	dto.Success(c, h.indexing.Health(ctx, st.PrimaryAvailable))
}
