package dto

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chem-rag-api/internal/application/qa"
	"chem-rag-api/internal/application/retrieval"
	"chem-rag-api/internal/application/segment"
	"chem-rag-api/internal/infrastructure/vectorstore"
	"chem-rag-api/pkg/errors"
	"chem-rag-api/pkg/logger"
)

// badRequestErrors 直接映射为 400 的参数类错误
var badRequestErrors = []error{
	retrieval.ErrEmptyQuery,
	retrieval.ErrEmptyFileID,
	retrieval.ErrInvalidTopK,
	qa.ErrEmptyQuestion,
	qa.ErrInvalidTopK,
	segment.ErrEmptyFileID,
}

// toAppError 将任意错误归一为 AppError
func toAppError(err error) *errors.AppError {
	if errors.IsAppError(err) {
		return errors.AsAppError(err)
	}
	for _, target := range badRequestErrors {
		if stderrors.Is(err, target) {
			return errors.ErrInvalidParam.WithDetail(err.Error())
		}
	}
	switch {
	case stderrors.Is(err, retrieval.ErrQueryEmbedding):
		return errors.Wrap(err, errors.CodeEmbeddingFailed, "查询向量化失败")
	case stderrors.Is(err, vectorstore.ErrIndexCorrupt):
		return errors.Wrap(err, errors.CodeIndexCorrupt, "索引文件损坏")
	case stderrors.Is(err, qa.ErrGenerationFailed):
		return errors.Wrap(err, errors.CodeLLMCallFailed, "回答生成失败")
	}
	return errors.Wrap(err, errors.CodeInternalError, "internal server error")
}

// FromError 按错误类型写出错误响应，5xx 错误记录日志
func FromError(c *gin.Context, err error) {
	appErr := toAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err,
			"path", c.FullPath(),
			"error_code", appErr.Code,
		)
	}

	detail := &ErrorDetail{ErrorCode: string(appErr.Code), Details: appErr.Detail}
	if detail.Details == "" && appErr.Err != nil && status < http.StatusInternalServerError {
		detail.Details = appErr.Err.Error()
	}
	ErrorWithDetail(c, status, appErr.Message, detail)
}
