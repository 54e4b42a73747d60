package handler

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"chem-rag-api/internal/application/qa"
	"chem-rag-api/internal/interfaces/http/dto"
	"chem-rag-api/pkg/errors"
	"chem-rag-api/pkg/logger"
)

// QAHandler 问答处理器
type QAHandler struct {
	qa *qa.Service
}

// NewQAHandler 创建问答处理器
func NewQAHandler(svc *qa.Service) *QAHandler {
	return &QAHandler{qa: svc}
}

func bindAskRequest(c *gin.Context) (qa.AskRequest, error) {
	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return qa.AskRequest{}, errors.ErrInvalidParam.WithDetail(err.Error())
	}
	return req.ToAskRequest(), nil
}

// Ask 检索增强问答
// @Summary RAG 问答
// @Tags QA
// @Accept json
// @Produce json
// @Param body body dto.AskRequest true "问题"
// @Success 200 {object} dto.Response[qa.AskResult]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/qa/rag [post]
func (h *QAHandler) Ask(c *gin.Context) {
	req, err := bindAskRequest(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	res, err := h.qa.Ask(c.Request.Context(), req)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, res)
}

// AskStream SSE 流式问答：start → content* → end，失败时以 error 事件结束
// @Summary RAG 流式问答
// @Tags QA
// @Accept json
// @Produce text/event-stream
// @Param body body dto.AskRequest true "问题"
// @Success 200 {string} string "SSE 事件流"
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/qa/rag/stream [post]
func (h *QAHandler) AskStream(c *gin.Context) {
	req, err := bindAskRequest(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan qa.StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		errCh <- h.qa.AskStream(ctx, req, func(ev qa.StreamEvent) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	// 首个事件之前的失败（参数校验、检索）仍按普通 JSON 错误返回
	first, ok := <-events
	if !ok {
		if err := <-errCh; err != nil {
			dto.FromError(c, err)
			return
		}
		dto.InternalError(c, "stream ended without events")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	pending := &first
	c.Stream(func(w io.Writer) bool {
		var ev qa.StreamEvent
		if pending != nil {
			ev, pending = *pending, nil
		} else {
			select {
			case next, ok := <-events:
				if !ok {
					return false
				}
				ev = next
			case <-ctx.Done():
				return false
			}
		}
		c.SSEvent(ev.Type, ev)
		return ev.Type != qa.StreamEventEnd && ev.Type != qa.StreamEventError
	})

	if ctx.Err() != nil {
		logger.Info(ctx, "qa stream closed by client")
	}
}

// Health 问答服务状态
// @Summary 问答服务健康
// @Tags QA
// @Produce json
// @Success 200 {object} dto.Response[qa.Health]
// @Router /api/qa/health [get]
func (h *QAHandler) Health(c *gin.Context) {
	dto.Success(c, h.qa.Health(c.Request.Context()))
}

// AvailableFiles 已建索引、可用于问答的文件
// @Summary 可问答文件
// @Tags QA
// @Produce json
// @Success 200 {object} dto.Response[dto.AvailableFilesResponse]
// @Router /api/qa/available-files [get]
func (h *QAHandler) AvailableFiles(c *gin.Context) {
	infos := h.qa.AvailableIndices(c.Request.Context())
	files := make([]qa.AvailableFile, 0, len(infos))
	for _, info := range infos {
		files = append(files, qa.AvailableFile{FileID: info.FileID, VectorCount: info.VectorCount})
	}
	dto.Success(c, &dto.AvailableFilesResponse{TotalFiles: len(files), Files: files})
}
