// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"chem-rag-api/pkg/logger"
)

// Trace OpenTelemetry 追踪中间件，不记录探活与指标端点
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		switch r.URL.Path {
		case "/health", "/live", "/ready", "/metrics":
			return false
		}
		return true
	}))
}

// TraceContext 将 trace_id 写入 gin 与日志 Context；未开启追踪时以 request_id 代替
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.SpanContext().IsValid() {
			if rid := c.GetString("request_id"); rid != "" {
				c.Set("trace_id", rid)
			}
			c.Next()
			return
		}

		traceID := span.SpanContext().TraceID().String()
		spanID := span.SpanContext().SpanID().String()
		c.Set("trace_id", traceID)
		c.Set("span_id", spanID)

		ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, spanID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", traceID)

		c.Next()
	}
}
