// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chem-rag-api/internal/config"
	"chem-rag-api/internal/interfaces/http/handler"
	"chem-rag-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Health    *handler.HealthHandler
	File      *handler.FileHandler
	Segment   *handler.SegmentHandler
	Embedding *handler.EmbeddingHandler
	QA        *handler.QAHandler
	Job       *handler.JobHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers *Handlers
	limiter  middleware.RateLimiter
}

// New 创建路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers *Handlers, limiter middleware.RateLimiter) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsPath() string {
	if p := r.cfg.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
	}
	r.engine.Use(middleware.TraceContext())

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics("/health", "/live", "/ready", r.metricsPath()))
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	api := r.engine.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: r.cfg.Security.RateLimit.Enabled,
		Limit:   r.cfg.Security.RateLimit.Limit,
		Window:  r.cfg.Security.RateLimit.Window,
	}, r.limiter))

	RegisterAPIRoutes(api, h)
}
