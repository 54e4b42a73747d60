package wire

import (
	"context"
	"fmt"
	"os"

	"chem-rag-api/internal/application/document"
	"chem-rag-api/internal/application/indexing"
	"chem-rag-api/internal/application/qa"
	"chem-rag-api/internal/application/retrieval"
	"chem-rag-api/internal/application/segment"
	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/repository"
	"chem-rag-api/internal/infrastructure/embedding"
	"chem-rag-api/internal/infrastructure/llm"
	"chem-rag-api/internal/infrastructure/messaging"
	"chem-rag-api/internal/infrastructure/persistence/postgres"
	"chem-rag-api/internal/infrastructure/persistence/redis"
	"chem-rag-api/internal/infrastructure/vectorstore"
	"chem-rag-api/internal/interfaces/http/handler"
	"chem-rag-api/internal/interfaces/http/middleware"
	"chem-rag-api/pkg/logger"
)

// Embedders 本地（兜底）与远程向量化服务；Primary 未配置时为 nil
type Embedders struct {
	Local   *embedding.Service
	Primary *embedding.Service
}

// Worker 索引构建 worker 依赖
type Worker struct {
	Indexing *indexing.Service
	Consumer *messaging.Consumer
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres, cfg.App.Env == "development")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(ctx, &cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClientOptional Redis 不可达时不阻塞 API 启动
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(ctx, &cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, cache, rate limit, build lock and async jobs disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	logger.Info(ctx, "redis connected", "addr", client.Addr())
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideEmbeddingCache 查询向量缓存
func ProvideEmbeddingCache(client *redis.Client) embedding.ReadThroughCache {
	if client == nil {
		return nil
	}
	return redis.NewCache(client)
}

// ProvideRateLimiter API 限流器
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideJobPublisher 索引构建任务发布者
func ProvideJobPublisher(client *redis.Client, cfg *config.Config) indexing.JobPublisher {
	if client == nil {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(client.Redis(), int64(maxLen))
}

// ProvideBuildLocker 跨进程索引构建锁，Redis 不可用时只做进程内互斥
func ProvideBuildLocker(client *redis.Client, cfg *config.Config) indexing.BuildLocker {
	if client == nil {
		return nil
	}
	return redis.NewBuildLock(client, cfg.VectorIndex.BuildLockTTL, cfg.VectorIndex.BuildLockWait)
}

// embeddingModelTracker 由 redis.Cache 实现
type embeddingModelTracker interface {
	TrackEmbeddingModel(ctx context.Context, label, model string, dim int) (int, error)
}

// ProvideEmbedders 创建本地与远程向量化服务。
// 本地模型预热失败时启动失败；远程模型初始化或预热失败只告警，按降级运行
func ProvideEmbedders(ctx context.Context, cfg *config.Config, cache embedding.ReadThroughCache) (*Embedders, error) {
	ttl := cfg.Cache.EmbeddingTTL

	localProvider, err := embedding.NewLocalProvider(&cfg.Embedding.Local)
	if err != nil {
		return nil, fmt.Errorf("init local embedding: %w", err)
	}
	out := &Embedders{
		Local: embedding.NewService(
			embedding.NewCachedProvider(localProvider, cache, ttl),
			embedding.WithLabel("local"),
			embedding.WithBatchSize(cfg.Embedding.Local.BatchSize),
		),
	}
	if err := out.Local.Warmup(ctx); err != nil {
		return nil, fmt.Errorf("warm up local embedding: %w", err)
	}
	trackEmbeddingModel(ctx, cache, out.Local)

	primaryProvider, err := embedding.NewPrimaryProvider(ctx, &cfg.Embedding.Primary)
	switch {
	case err != nil:
		logger.Warn(ctx, "primary embedding not available, using local model only", "error", err.Error())
	case primaryProvider != nil:
		out.Primary = embedding.NewService(
			embedding.NewCachedProvider(primaryProvider, cache, ttl),
			embedding.WithLabel("primary"),
		)
		if err := out.Primary.Warmup(ctx); err != nil {
			logger.Warn(ctx, "primary embedding warmup failed, running degraded", "error", err.Error())
		}
		trackEmbeddingModel(ctx, cache, out.Primary)
	}
	return out, nil
}

// trackEmbeddingModel 模型或维度变化后清除旧的查询向量缓存
func trackEmbeddingModel(ctx context.Context, cache embedding.ReadThroughCache, svc *embedding.Service) {
	tracker, ok := cache.(embeddingModelTracker)
	if !ok {
		return
	}
	n, err := tracker.TrackEmbeddingModel(ctx, svc.Label(), svc.ModelName(), svc.Dimension())
	if err != nil {
		logger.Warn(ctx, "track embedding model failed", "provider", svc.Label(), "error", err.Error())
		return
	}
	if n > 0 {
		logger.Info(ctx, "stale query embeddings invalidated", "provider", svc.Label(), "model", svc.ModelName(), "keys", n)
	}
}

// ProvideVectorStore 向量索引仓储，新建索引使用本地模型维度
func ProvideVectorStore(cfg *config.Config, emb *Embedders) (*vectorstore.Store, error) {
	return vectorstore.NewStore(&cfg.VectorIndex, emb.Local.Dimension())
}

// ProvideRetriever 检索服务
func ProvideRetriever(cfg *config.Config, store *vectorstore.Store, emb *Embedders) *retrieval.Retriever {
	var primary retrieval.QueryEncoder
	if emb.Primary != nil {
		primary = emb.Primary
	}
	return retrieval.NewRetriever(store, emb.Local, primary, retrieval.ConfigFrom(cfg.Retrieval))
}

// ProvideSegmenter 分段器
func ProvideSegmenter(cfg *config.Config) *segment.Segmenter {
	return segment.NewSegmenter(segment.ConfigFrom(cfg.Segmentation))
}

// ProvideIndexingService 分段与索引构建服务
func ProvideIndexingService(
	cfg *config.Config,
	docs repository.DocumentRepository,
	segments repository.SegmentRepository,
	jobs repository.JobRepository,
	tx repository.Transactor,
	parser indexing.TextExtractor,
	segmenter *segment.Segmenter,
	emb *Embedders,
	store *vectorstore.Store,
	publisher indexing.JobPublisher,
	locker indexing.BuildLocker,
) *indexing.Service {
	return indexing.NewService(indexing.Deps{
		Documents:  docs,
		Segments:   segments,
		Jobs:       jobs,
		Tx:         tx,
		Parser:     parser,
		Segmenter:  segmenter,
		Encoder:    emb.Local,
		Store:      store,
		Publisher:  publisher,
		Locker:     locker,
		BatchSize:  cfg.Embedding.Local.BatchSize,
		MaxRetries: cfg.Messaging.RedisStream.RetryLimit,
	})
}

// ProvideDocumentService 文档服务
func ProvideDocumentService(
	cfg *config.Config,
	docs repository.DocumentRepository,
	segments repository.SegmentRepository,
	store *vectorstore.Store,
	parser document.TextExtractor,
) *document.Service {
	return document.NewService(docs, segments, store, parser, cfg.Storage)
}

// ProvideSegmentService 分段管理服务
func ProvideSegmentService(cfg *config.Config, segments repository.SegmentRepository) *segment.Service {
	return segment.NewService(segments, segment.ConfigFrom(cfg.Segmentation))
}

// ProvideQAService 问答服务
func ProvideQAService(cfg *config.Config, retriever *retrieval.Retriever, factory *llm.EinoFactory, store *vectorstore.Store) *qa.Service {
	gen := qa.NewGenerator(factory, qa.GeneratorConfigFrom(cfg.LLM, cfg.Generation))
	return qa.NewService(retriever, gen, store, factory.Available())
}

// ProvideHealthHandler 健康检查处理器
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rdb *redis.Client) *handler.HealthHandler {
	var redisChecker handler.HealthChecker
	if rdb != nil {
		redisChecker = rdb
	}
	return handler.NewHealthHandler(pg, redisChecker, cfg.VectorIndex.Dir, cfg.App.Version)
}

// ProvideConsumer 索引构建消息消费者
func ProvideConsumer(client *redis.Client, cfg *config.Config) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	return messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamIndexBuild,
		Group:         messaging.IndexWorkerGroup(rs.ConsumerGroupPrefix),
		ConsumerName:  consumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
