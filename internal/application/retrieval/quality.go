package retrieval

import (
	"context"
	"strings"
	"unicode/utf8"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/pkg/logger"
	"chem-rag-api/pkg/metrics"
)

// 质量过滤原因
const (
	reasonBoilerplate   = "boilerplate"
	reasonTooShort      = "too_short"
	reasonLowSimilarity = "low_similarity"
)

// rejectReason 返回过滤原因，保留时返回空串
func (q QualityConfig) rejectReason(res entity.RetrievalResult) string {
	text := res.Metadata.DisplayText()
	if q.isBoilerplate(text) {
		return reasonBoilerplate
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < q.MinTextLength {
		return reasonTooShort
	}
	if res.Similarity < q.Floor {
		return reasonLowSimilarity
	}
	return ""
}

// isBoilerplate 所有标记同时出现且文本较短
func (q QualityConfig) isBoilerplate(text string) bool {
	if len(q.BoilerplateMarkers) == 0 {
		return false
	}
	if utf8.RuneCountInString(text) >= q.BoilerplateMaxLength {
		return false
	}
	for _, m := range q.BoilerplateMarkers {
		if !strings.Contains(text, m) {
			return false
		}
	}
	return true
}

// QualityFilter 去除页眉类片段、过短文本和相似度低于硬下限的结果，保持原有顺序
func (r *Retriever) QualityFilter(ctx context.Context, results []entity.RetrievalResult) []entity.RetrievalResult {
	out := make([]entity.RetrievalResult, 0, len(results))
	for _, res := range results {
		if reason := r.cfg.Quality.rejectReason(res); reason != "" {
			metrics.RetrievalFilteredTotal.WithLabelValues(reason).Inc()
			logger.Debug(ctx, "dropped low quality result",
				"segment_id", res.Metadata.SegmentID,
				"similarity", res.Similarity,
				"reason", reason,
			)
			continue
		}
		out = append(out, res)
	}
	return out
}
