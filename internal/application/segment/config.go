// Package segment 将文档文本切分为可独立检索的分段，并提供标签与关键词推荐。
package segment

import "chem-rag-api/internal/config"

// Config 分段参数，长度均按字符（rune）计
type Config struct {
	MinSegmentLength    int
	MaxSegmentLength    int
	TargetSegmentLength int
	OverlapLength       int
	MaxTags             int
}

// DefaultConfig 默认分段参数
func DefaultConfig() Config {
	return Config{
		MinSegmentLength:    50,
		MaxSegmentLength:    500,
		TargetSegmentLength: 300,
		OverlapLength:       50,
		MaxTags:             5,
	}
}

// ConfigFrom 由应用配置构造，非法值回落到默认值
func ConfigFrom(c config.SegmentationConfig) Config {
	d := DefaultConfig()
	out := Config{
		MinSegmentLength:    c.MinSegmentLength,
		MaxSegmentLength:    c.MaxSegmentLength,
		TargetSegmentLength: c.TargetSegmentLength,
		OverlapLength:       c.OverlapLength,
		MaxTags:             c.MaxTags,
	}
	if out.MinSegmentLength <= 0 {
		out.MinSegmentLength = d.MinSegmentLength
	}
	if out.MaxSegmentLength < out.MinSegmentLength {
		out.MaxSegmentLength = max(d.MaxSegmentLength, out.MinSegmentLength)
	}
	if out.TargetSegmentLength < out.MinSegmentLength || out.TargetSegmentLength > out.MaxSegmentLength {
		out.TargetSegmentLength = d.TargetSegmentLength
		if out.TargetSegmentLength < out.MinSegmentLength || out.TargetSegmentLength > out.MaxSegmentLength {
			out.TargetSegmentLength = (out.MinSegmentLength + out.MaxSegmentLength) / 2
		}
	}
	if out.OverlapLength < 0 {
		out.OverlapLength = 0
	}
	if out.MaxTags <= 0 {
		out.MaxTags = d.MaxTags
	}
	return out
}
