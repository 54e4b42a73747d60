package retrieval

import "chem-rag-api/internal/config"

// Config 检索参数
type Config struct {
	DefaultTopK      int
	MaxTopK          int
	MinSimilarity    float64
	MaxContextLength int
	Quality          QualityConfig
}

// QualityConfig 全局检索的质量过滤参数
type QualityConfig struct {
	// Floor 相似度硬下限
	Floor float64
	// MinTextLength 去除首尾空白后的最短字符数
	MinTextLength int
	// BoilerplateMarkers 同时出现即视为页眉类片段
	BoilerplateMarkers []string
	// BoilerplateMaxLength 页眉类片段的长度上限
	BoilerplateMaxLength int
}

// DefaultConfig 默认检索参数
func DefaultConfig() Config {
	return Config{
		DefaultTopK:      5,
		MaxTopK:          50,
		MinSimilarity:    0,
		MaxContextLength: 4000,
		Quality: QualityConfig{
			Floor:                0.02,
			MinTextLength:        20,
			BoilerplateMarkers:   []string{"===", "ISSN"},
			BoilerplateMaxLength: 500,
		},
	}
}

// ConfigFrom 由应用配置构建，非法值回退默认
func ConfigFrom(c config.RetrievalConfig) Config {
	cfg := DefaultConfig()
	if c.DefaultTopK > 0 {
		cfg.DefaultTopK = c.DefaultTopK
	}
	if c.MaxTopK >= cfg.DefaultTopK {
		cfg.MaxTopK = c.MaxTopK
	}
	cfg.MinSimilarity = c.MinSimilarity
	if c.MaxContextLength > 0 {
		cfg.MaxContextLength = c.MaxContextLength
	}
	cfg.Quality.Floor = c.QualityFloor
	if c.MinTextLength > 0 {
		cfg.Quality.MinTextLength = c.MinTextLength
	}
	if len(c.BoilerplateMarkers) > 0 {
		cfg.Quality.BoilerplateMarkers = c.BoilerplateMarkers
	}
	if c.BoilerplateMaxLength > 0 {
		cfg.Quality.BoilerplateMaxLength = c.BoilerplateMaxLength
	}
	return cfg
}
