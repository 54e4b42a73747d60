// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker 依赖组件的健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	pg       HealthChecker
	redis    HealthChecker
	indexDir string
	version  string
}

// NewHealthHandler 创建健康检查处理器；redis 可为 nil（未启用缓存与异步任务）
func NewHealthHandler(pg, redis HealthChecker, indexDir, version string) *HealthHandler {
	return &HealthHandler{
		pg:       pg,
		redis:    redis,
		indexDir: indexDir,
		version:  version,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

func runCheck(ctx context.Context, checker HealthChecker) *readinessCheck {
	start := time.Now()
	err := checker.HealthCheck(ctx)
	check := &readinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = "error"
		check.Error = err.Error()
	}
	return check
}

// Ready 就绪检查接口：Postgres 与索引目录必需，Redis 故障只降级
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{}
	ready := true

	if h.pg == nil {
		checks["postgres"] = &readinessCheck{Status: "missing", Error: "postgres client not configured"}
		ready = false
	} else {
		checks["postgres"] = runCheck(ctx, h.pg)
		ready = ready && checks["postgres"].Status == "ok"
	}

	if h.redis == nil {
		checks["redis"] = &readinessCheck{Status: "disabled"}
	} else if chk := runCheck(ctx, h.redis); chk.Status != "ok" {
		chk.Status = "degraded"
		checks["redis"] = chk
	} else {
		checks["redis"] = chk
	}

	if st, err := os.Stat(h.indexDir); err != nil || !st.IsDir() {
		msg := "not a directory"
		if err != nil {
			msg = err.Error()
		}
		checks["vector_index"] = &readinessCheck{Status: "error", Error: msg}
		ready = false
	} else {
		checks["vector_index"] = &readinessCheck{Status: "ok"}
	}

	resp := readinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
