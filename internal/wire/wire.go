//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"chem-rag-api/internal/application/document"
	"chem-rag-api/internal/application/indexing"
	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/repository"
	"chem-rag-api/internal/infrastructure/llm"
	"chem-rag-api/internal/infrastructure/parsing"
	"chem-rag-api/internal/infrastructure/persistence/postgres"
	"chem-rag-api/internal/interfaces/http/handler"
	"chem-rag-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		OptionalRedisSet,
		EmbeddingSet,
		ServiceSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化索引构建 worker，Redis 必需
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		ProvideRedisClient,
		ProvideEmbeddingCache,
		ProvideJobPublisher,
		ProvideBuildLocker,
		EmbeddingSet,
		ProvideSegmenter,
		parsing.NewParser,
		wire.Bind(new(indexing.TextExtractor), new(*parsing.Parser)),
		ProvideIndexingService,
		ProvideConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	wire.Build(ProvidePostgresClient)
	return nil, nil, nil
}

// RepoSet PostgreSQL 客户端、仓储与接口绑定
var RepoSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewDocumentRepository,
	postgres.NewSegmentRepository,
	postgres.NewJobRepository,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.DocumentRepository), new(*postgres.DocumentRepository)),
	wire.Bind(new(repository.SegmentRepository), new(*postgres.SegmentRepository)),
	wire.Bind(new(repository.JobRepository), new(*postgres.JobRepository)),
)

// OptionalRedisSet Redis 不可用时缓存、限流与异步任务一并关闭
var OptionalRedisSet = wire.NewSet(
	ProvideRedisClientOptional,
	ProvideEmbeddingCache,
	ProvideRateLimiter,
	ProvideJobPublisher,
	ProvideBuildLocker,
)

// EmbeddingSet 向量化与向量索引
var EmbeddingSet = wire.NewSet(
	ProvideEmbedders,
	ProvideVectorStore,
)

// ServiceSet 应用服务
var ServiceSet = wire.NewSet(
	parsing.NewParser,
	wire.Bind(new(indexing.TextExtractor), new(*parsing.Parser)),
	wire.Bind(new(document.TextExtractor), new(*parsing.Parser)),
	ProvideSegmenter,
	ProvideIndexingService,
	ProvideDocumentService,
	ProvideSegmentService,
	ProvideRetriever,
	llm.NewEinoFactory,
	ProvideQAService,
)

// RouterSet 处理器与路由器
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewFileHandler,
	handler.NewSegmentHandler,
	handler.NewEmbeddingHandler,
	handler.NewQAHandler,
	handler.NewJobHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
