// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// PageRequest 分页请求参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

// Normalize 规范化分页参数
func (r *PageRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
	if r.PageSize > 100 {
		r.PageSize = 100
	}
}

// BindPage 从 Gin Context 绑定分页参数
func BindPage(c *gin.Context) PageRequest {
	page := parseIntWithDefault(c.Query("page"), 1)
	pageSize := parseIntWithDefault(c.Query("page_size"), 20)

	req := PageRequest{
		Page:     page,
		PageSize: pageSize,
	}
	req.Normalize()
	return req
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// BindFileID 获取路径参数 file_id
func BindFileID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("file_id"))
}

// BindSegmentID 获取路径参数 segment_id
func BindSegmentID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("segment_id"))
}

// BindJobID 获取路径参数 job_id
func BindJobID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("job_id"))
}

// SplitList 解析逗号分隔或重复出现的查询参数
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
