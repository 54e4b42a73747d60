package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chem-rag-api/internal/application/document"
	"chem-rag-api/internal/application/indexing"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
	"chem-rag-api/internal/interfaces/http/dto"
	"chem-rag-api/pkg/errors"
)

// FileHandler 文档管理处理器
type FileHandler struct {
	docs     *document.Service
	indexing *indexing.Service
}

// NewFileHandler 创建文档管理处理器
func NewFileHandler(docs *document.Service, indexing *indexing.Service) *FileHandler {
	return &FileHandler{docs: docs, indexing: indexing}
}

// Upload 上传文档
// @Summary 上传文档
// @Description 支持 pdf/docx/txt，文件以 uuid 命名存储
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "文档"
// @Success 201 {object} dto.Response[dto.FileResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 413 {object} dto.ErrorResponse
// @Router /api/files/upload [post]
func (h *FileHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.docs.MaxUploadSize()+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		dto.BadRequest(c, "没有选择文件")
		return
	}
	if fh.Size > h.docs.MaxUploadSize() {
		dto.FromError(c, errors.New(errors.CodePayloadTooLarge, "文件过大"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		dto.FromError(c, errors.Wrap(err, errors.CodeInvalidParam, "无法读取上传文件"))
		return
	}
	defer f.Close()

	doc, err := h.docs.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Created(c, dto.ToFileResponse(doc))
}

// List 分页列出文档
// @Summary 文档列表
// @Tags Files
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param file_type query string false "文件类型"
// @Param status query string false "处理状态"
// @Success 200 {object} dto.Response[dto.FileListResponse]
// @Router /api/files [get]
func (h *FileHandler) List(c *gin.Context) {
	page := dto.BindPage(c)

	var filter *repository.DocumentFilter
	if ft, st := c.Query("file_type"), c.Query("status"); ft != "" || st != "" {
		filter = &repository.DocumentFilter{
			FileType: entity.FileType(ft),
			Status:   entity.DocumentStatus(st),
		}
	}

	res, err := h.docs.List(c.Request.Context(), filter, repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToFileListResponse(res.Items), dto.NewPageMeta(res.Page, res.PageSize, res.Total))
}

// Get 文档详情
// @Summary 文档详情
// @Tags Files
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[dto.FileResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/files/{file_id} [get]
func (h *FileHandler) Get(c *gin.Context) {
	doc, err := h.docs.Get(c.Request.Context(), dto.BindFileID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToFileResponse(doc))
}

// Download 下载原始文件
// @Summary 下载文档
// @Tags Files
// @Produce octet-stream
// @Param file_id path string true "文件 ID"
// @Success 200 {file} file
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/files/{file_id}/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	doc, path, err := h.docs.DownloadPath(c.Request.Context(), dto.BindFileID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	c.FileAttachment(path, doc.OriginalName)
}

// Delete 删除文档及其分段与索引
// @Summary 删除文档
// @Tags Files
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[document.DeleteResult]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/files/{file_id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	res, err := h.docs.Delete(c.Request.Context(), dto.BindFileID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.SuccessWithMessage(c, "文件删除成功", res)
}

// Stats 文档统计
// @Summary 文档统计
// @Tags Files
// @Produce json
// @Success 200 {object} dto.Response[document.Stats]
// @Router /api/files/stats [get]
func (h *FileHandler) Stats(c *gin.Context) {
	st, err := h.docs.Stats(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, st)
}

// Parse 解析文档并返回文本统计与预览
// @Summary 解析文档
// @Tags Files
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[document.ParseResult]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /api/files/{file_id}/parse [post]
func (h *FileHandler) Parse(c *gin.Context) {
	res, err := h.docs.Parse(c.Request.Context(), dto.BindFileID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.SuccessWithMessage(c, "文档解析成功", res)
}

// Jobs 文件最近的索引任务
// @Summary 文件索引任务列表
// @Tags Files
// @Produce json
// @Param file_id path string true "文件 ID"
// @Success 200 {object} dto.Response[dto.JobListResponse]
// @Router /api/files/{file_id}/jobs [get]
func (h *FileHandler) Jobs(c *gin.Context) {
	jobs, err := h.indexing.ListJobs(c.Request.Context(), dto.BindFileID(c), 20)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToJobListResponse(jobs))
}
