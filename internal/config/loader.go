// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// envPattern 匹配 ${VAR} 或 ${VAR:default}
// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
// 配置目录默认为 configs，可通过 CONFIG_DIR 覆盖
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	return LoadFrom(dir)
}

// LoadFrom 从指定目录加载配置
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 默认配置（缺失时完全依赖默认值与环境变量）
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), true); err != nil {
		return nil, err
	}

	// 2. 环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := loadConfigFile(v, filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env)), true); err != nil {
		return nil, err
	}

	// 3. 环境变量直接覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
		return nil
	}
	if err := v.MergeConfig(reader); err != nil {
		return fmt.Errorf("failed to merge processed config %s: %w", path, err)
	}
	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		// 未定义且无默认值时保留原样，便于排查
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验相互依赖的配置项
func (c *Config) Validate() error {
	s := c.Segmentation
	if s.MinSegmentLength <= 0 {
		return fmt.Errorf("segmentation.min_segment_length must be positive, got %d", s.MinSegmentLength)
	}
	if s.MaxSegmentLength < s.MinSegmentLength {
		return fmt.Errorf("segmentation.max_segment_length (%d) < min_segment_length (%d)", s.MaxSegmentLength, s.MinSegmentLength)
	}
	if s.TargetSegmentLength < s.MinSegmentLength || s.TargetSegmentLength > s.MaxSegmentLength {
		return fmt.Errorf("segmentation.target_segment_length (%d) must lie in [%d, %d]",
			s.TargetSegmentLength, s.MinSegmentLength, s.MaxSegmentLength)
	}
	if c.Embedding.Local.Dimension <= 0 {
		return fmt.Errorf("embedding.local.dimension must be positive")
	}
	switch strings.ToLower(c.VectorIndex.Metric) {
	case "cosine", "ip", "l2":
	default:
		return fmt.Errorf("vector_index.metric %q not supported", c.VectorIndex.Metric)
	}
	if c.Retrieval.MaxTopK < c.Retrieval.DefaultTopK {
		return fmt.Errorf("retrieval.max_top_k (%d) < default_top_k (%d)", c.Retrieval.MaxTopK, c.Retrieval.DefaultTopK)
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chem-rag-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")
	v.SetDefault("server.http.idle_timeout", "120s")

	// 数据库
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "chem_rag")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")

	// Redis
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.embedding_ttl", "24h")

	// 文件存储
	v.SetDefault("storage.upload_dir", "data/uploads")
	v.SetDefault("storage.max_upload_size", 50<<20)
	v.SetDefault("storage.allowed_types", []string{"pdf", "docx", "txt"})

	// 分段
	v.SetDefault("segmentation.min_segment_length", 50)
	v.SetDefault("segmentation.max_segment_length", 500)
	v.SetDefault("segmentation.target_segment_length", 300)
	v.SetDefault("segmentation.overlap_length", 50)
	v.SetDefault("segmentation.max_tags", 5)

	// Embedding
	v.SetDefault("embedding.local.provider", "hash")
	v.SetDefault("embedding.local.model", "all-minilm:l6-v2")
	v.SetDefault("embedding.local.dimension", 384)
	v.SetDefault("embedding.local.batch_size", 32)
	v.SetDefault("embedding.local.endpoint", "http://localhost:11434")
	v.SetDefault("embedding.local.timeout", "30s")
	v.SetDefault("embedding.primary.enabled", false)
	v.SetDefault("embedding.primary.model", "text-embedding-3-small")
	v.SetDefault("embedding.primary.dimension", 1536)
	v.SetDefault("embedding.primary.requests_per_second", 5)
	v.SetDefault("embedding.primary.timeout", "15s")

	// 向量索引
	v.SetDefault("vector_index.dir", "data/vector_indices")
	v.SetDefault("vector_index.metric", "cosine")
	v.SetDefault("vector_index.build_lock_ttl", "10m")
	v.SetDefault("vector_index.build_lock_wait", "30s")

	// 检索
	v.SetDefault("retrieval.default_top_k", 5)
	v.SetDefault("retrieval.max_top_k", 50)
	v.SetDefault("retrieval.min_similarity", 0.0)
	v.SetDefault("retrieval.quality_floor", 0.02)
	v.SetDefault("retrieval.min_text_length", 20)
	v.SetDefault("retrieval.boilerplate_markers", []string{"===", "ISSN"})
	v.SetDefault("retrieval.boilerplate_max_length", 500)
	v.SetDefault("retrieval.max_context_length", 4000)

	// 生成
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("generation.temperature", 0.1)
	v.SetDefault("generation.max_tokens", 1000)
	v.SetDefault("generation.top_p", 0.9)
	v.SetDefault("generation.max_prompt_tokens", 3000)

	// Redis Stream
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.consumer_group_prefix", "chem_rag")
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "1m")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	// 可观测性
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output", "stdout")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全
	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.limit", 120)
	v.SetDefault("security.rate_limit.window", "1m")
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.max_age", "12h")
}
