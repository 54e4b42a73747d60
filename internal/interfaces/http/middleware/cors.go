// Package middleware 提供 API 网关的 HTTP 中间件：恢复、请求 ID、跨域、限流、追踪与指标
package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"chem-rag-api/internal/config"
)

// corsExposeHeaders 前端需要读取的响应头，SSE 问答依赖 X-Request-ID 关联日志
var corsExposeHeaders = []string{RequestIDHeader, "X-Trace-ID", "Content-Disposition"}

// CORS 跨域中间件。允许任意来源时不携带凭证
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", "Accept", "Cache-Control", "Last-Event-ID", RequestIDHeader}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}

	c := cors.Config{
		AllowMethods:  methods,
		AllowHeaders:  headers,
		ExposeHeaders: corsExposeHeaders,
		MaxAge:        maxAge,
	}
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
		c.AllowCredentials = true
	}
	return cors.New(c)
}
