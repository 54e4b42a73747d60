// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	Segmentation  SegmentationConfig  `yaml:"segmentation" mapstructure:"segmentation"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	VectorIndex   VectorIndexConfig   `yaml:"vector_index" mapstructure:"vector_index"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Generation    GenerationConfig    `yaml:"generation" mapstructure:"generation"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// Addr 返回监听地址
func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// DSN 返回 gorm postgres 驱动使用的连接串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// EmbeddingTTL 查询向量缓存时长，0 表示不缓存
	EmbeddingTTL time.Duration `yaml:"embedding_ttl" mapstructure:"embedding_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// StorageConfig 上传文件存储配置
type StorageConfig struct {
	UploadDir     string   `yaml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploadSize int64    `yaml:"max_upload_size" mapstructure:"max_upload_size"`
	AllowedTypes  []string `yaml:"allowed_types" mapstructure:"allowed_types"`
}

// SegmentationConfig 分段配置
type SegmentationConfig struct {
	MinSegmentLength    int `yaml:"min_segment_length" mapstructure:"min_segment_length"`
	MaxSegmentLength    int `yaml:"max_segment_length" mapstructure:"max_segment_length"`
	TargetSegmentLength int `yaml:"target_segment_length" mapstructure:"target_segment_length"`
	OverlapLength       int `yaml:"overlap_length" mapstructure:"overlap_length"`
	MaxTags             int `yaml:"max_tags" mapstructure:"max_tags"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Local   LocalEmbeddingConfig   `yaml:"local" mapstructure:"local"`
	Primary PrimaryEmbeddingConfig `yaml:"primary" mapstructure:"primary"`
}

// LocalEmbeddingConfig 本地 Embedding 模型配置
type LocalEmbeddingConfig struct {
	// Provider hash / http / ollama
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PrimaryEmbeddingConfig 远程（OpenAI 兼容）Embedding 配置
type PrimaryEmbeddingConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	APIKey            string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Model             string        `yaml:"model" mapstructure:"model"`
	Dimension         int           `yaml:"dimension" mapstructure:"dimension"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Configured 是否具备调用远程 Embedding 的最小配置
func (c PrimaryEmbeddingConfig) Configured() bool {
	return c.Enabled && c.APIKey != "" && c.Model != ""
}

// VectorIndexConfig 向量索引配置
type VectorIndexConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Metric cosine / ip / l2
	Metric string `yaml:"metric" mapstructure:"metric"`
	// BuildLockTTL 跨进程构建锁的持有上限，需长于单次构建耗时
	BuildLockTTL time.Duration `yaml:"build_lock_ttl" mapstructure:"build_lock_ttl"`
	// BuildLockWait 等待其他进程释放构建锁的最长时间
	BuildLockWait time.Duration `yaml:"build_lock_wait" mapstructure:"build_lock_wait"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	DefaultTopK          int      `yaml:"default_top_k" mapstructure:"default_top_k"`
	MaxTopK              int      `yaml:"max_top_k" mapstructure:"max_top_k"`
	MinSimilarity        float64  `yaml:"min_similarity" mapstructure:"min_similarity"`
	QualityFloor         float64  `yaml:"quality_floor" mapstructure:"quality_floor"`
	MinTextLength        int      `yaml:"min_text_length" mapstructure:"min_text_length"`
	BoilerplateMarkers   []string `yaml:"boilerplate_markers" mapstructure:"boilerplate_markers"`
	BoilerplateMaxLength int      `yaml:"boilerplate_max_length" mapstructure:"boilerplate_max_length"`
	MaxContextLength     int      `yaml:"max_context_length" mapstructure:"max_context_length"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GenerationConfig 回答生成配置
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens       int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TopP            float64 `yaml:"top_p" mapstructure:"top_p"`
	MaxPromptTokens int     `yaml:"max_prompt_tokens" mapstructure:"max_prompt_tokens"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置（滑动窗口）
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Limit   int           `yaml:"limit" mapstructure:"limit"`
	Window  time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
	// MaxAge 预检结果缓存时长
	MaxAge time.Duration `yaml:"max_age" mapstructure:"max_age"`
}
