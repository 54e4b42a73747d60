package qa

import (
	"strings"
)

var (
	technicalTerms   = []string{"化工", "反应", "催化", "工艺", "温度", "压力", "分离", "纯化"}
	quantityMarkers  = []string{"%", "℃", "MPa", "mol", "kg"}
	uncertaintyTerms = []string{"无法确定", "资料中没有", "需要进一步", "不够明确"}
)

// Quality 回答质量评估
type Quality struct {
	QualityScore            int    `json:"quality_score"`
	AnswerLength            int    `json:"answer_length"`
	AnswerTokens            int    `json:"answer_tokens"`
	HasTechnicalTerms       bool   `json:"has_technical_terms"`
	HasQuantitativeInfo     bool   `json:"has_quantitative_info"`
	AcknowledgesUncertainty bool   `json:"acknowledges_uncertainty"`
	ContextBased            bool   `json:"context_based"`
	Assessment              string `json:"assessment"`
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// EvaluateAnswerQuality 启发式评分：长度 >50 字符 +20，技术术语 +30，
// 定量信息 +25，基于上下文 +25；≥70 good，≥40 fair，其余 poor
func EvaluateAnswerQuality(answer, contextUsed string) Quality {
	length := len([]rune(answer))
	q := Quality{
		AnswerLength:            length,
		AnswerTokens:            EstimateTokens(answer),
		HasTechnicalTerms:       containsAny(strings.ToLower(answer), technicalTerms),
		HasQuantitativeInfo:     containsAny(answer, quantityMarkers),
		AcknowledgesUncertainty: containsAny(answer, uncertaintyTerms),
		ContextBased:            strings.TrimSpace(contextUsed) != "",
	}

	if length > 50 {
		q.QualityScore += 20
	}
	if q.HasTechnicalTerms {
		q.QualityScore += 30
	}
	if q.HasQuantitativeInfo {
		q.QualityScore += 25
	}
	if q.ContextBased {
		q.QualityScore += 25
	}
	q.QualityScore = min(100, q.QualityScore)

	switch {
	case q.QualityScore >= 70:
		q.Assessment = "good"
	case q.QualityScore >= 40:
		q.Assessment = "fair"
	default:
		q.Assessment = "poor"
	}
	return q
}
