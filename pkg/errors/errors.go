// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"
	CodePayloadTooLarge    ErrorCode = "1009"

	// 资源错误 (3xxx)
	CodeDocumentNotFound ErrorCode = "3001"
	CodeSegmentNotFound  ErrorCode = "3002"
	CodeIndexNotFound    ErrorCode = "3003"
	CodeFileNotFound     ErrorCode = "3004"
	CodeJobNotFound      ErrorCode = "3005"

	// 业务错误 (4xxx)
	CodeSegmentationFailed ErrorCode = "4001"
	CodeNoSegments         ErrorCode = "4002"
	CodeRetrievalFailed    ErrorCode = "4003"
	CodeIndexBuildFailed   ErrorCode = "4004"
	CodeLLMCallFailed      ErrorCode = "4005"
	CodeEmbeddingFailed    ErrorCode = "4006"
	CodeUnsupportedType    ErrorCode = "4007"
	CodeParseFailed        ErrorCode = "4008"

	// 外部服务错误 (5xxx)
	CodeDatabaseError    ErrorCode = "5001"
	CodeCacheError       ErrorCode = "5002"
	CodeIndexCorrupt     ErrorCode = "5003"
	CodeStorageError     ErrorCode = "5004"
	CodeLLMProviderError ErrorCode = "5005"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，使预定义错误可用于 errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 返回附带详细信息的副本
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回附带底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeUnsupportedType, CodeNoSegments:
		return http.StatusBadRequest
	case CodeNotFound, CodeDocumentNotFound, CodeSegmentNotFound, CodeIndexNotFound, CodeFileNotFound, CodeJobNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeParseFailed, CodeSegmentationFailed:
		return http.StatusUnprocessableEntity
	case CodeServiceUnavailable, CodeLLMProviderError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrDocumentNotFound = New(CodeDocumentNotFound, "document not found")
	ErrSegmentNotFound  = New(CodeSegmentNotFound, "segment not found")
	ErrIndexNotFound    = New(CodeIndexNotFound, "index not found")
	ErrJobNotFound      = New(CodeJobNotFound, "job not found")

	ErrNoSegments      = New(CodeNoSegments, "请先进行文档分段")
	ErrUnsupportedType = New(CodeUnsupportedType, "unsupported file type")
	ErrLLMCallFailed   = New(CodeLLMCallFailed, "LLM call failed")
)

// IsAppError 检查错误链中是否有 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
