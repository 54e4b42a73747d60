package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterAPIRoutes 注册 /api 下的业务路由
func RegisterAPIRoutes(api *gin.RouterGroup, h *Handlers) {
	// 文件管理
	files := api.Group("/files")
	{
		files.POST("/upload", h.File.Upload)
		files.GET("", h.File.List)
		files.GET("/stats", h.File.Stats)
		files.GET("/:file_id", h.File.Get)
		files.GET("/:file_id/download", h.File.Download)
		files.DELETE("/:file_id", h.File.Delete)
		files.POST("/:file_id/parse", h.File.Parse)
		files.GET("/:file_id/jobs", h.File.Jobs)
	}

	// 分段
	segments := api.Group("/segments")
	{
		segments.POST("/tag", h.Segment.UpdateTags)
		segments.POST("/tag/batch", h.Segment.BatchUpdateTags)
		segments.GET("/search", h.Segment.Search)
		segments.GET("/tags", h.Segment.SearchByTags)
		segments.GET("/stats", h.Segment.Stats)
		segments.GET("/recommend/:segment_id", h.Segment.Recommend)
		segments.GET("/file/:file_id", h.Segment.ListByFile)
		segments.DELETE("/file/:file_id", h.Segment.DeleteByFile)
		segments.POST("/:file_id", h.Segment.Segment)
	}

	// 向量化与检索
	embeddings := api.Group("/embeddings")
	{
		embeddings.GET("/list", h.Embedding.List)
		embeddings.GET("/health", h.Embedding.Health)
		embeddings.GET("/info/:file_id", h.Embedding.Info)
		embeddings.POST("/search/multi", h.Embedding.SearchMulti)
		embeddings.POST("/search/:file_id", h.Embedding.Search)
		embeddings.POST("/:file_id", h.Embedding.Build)
		embeddings.POST("/:file_id/async", h.Embedding.BuildAsync)
		embeddings.DELETE("/:file_id", h.Embedding.Delete)
	}

	// 问答
	qa := api.Group("/qa")
	{
		qa.POST("/rag", h.QA.Ask)
		qa.POST("/rag/stream", h.QA.AskStream)
		qa.GET("/health", h.QA.Health)
		qa.GET("/available-files", h.QA.AvailableFiles)
	}

	// 异步任务
	api.GET("/jobs/:job_id", h.Job.GetJob)
}
