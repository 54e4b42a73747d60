package qa

import (
	"strings"
	"testing"
)

func TestEvaluateAnswerQuality(t *testing.T) {
	long := strings.Repeat("说明", 30)
	tests := []struct {
		name       string
		answer     string
		context    string
		wantScore  int
		wantAssess string
	}{
		{"all signals", long + "反应温度 80℃", "ctx", 100, "good"},
		{"terms and context", "催化剂活性", "ctx", 55, "fair"},
		{"short plain", "不知道", "", 0, "poor"},
		{"quantity only", "5 kg", "", 25, "poor"},
		{"long with terms", long + "工艺", "", 50, "fair"},
		{"terms quantity context", "压力 2 MPa", "ctx", 80, "good"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := EvaluateAnswerQuality(tt.answer, tt.context)
			if q.QualityScore != tt.wantScore || q.Assessment != tt.wantAssess {
				t.Errorf("score = %d (%s), want %d (%s)", q.QualityScore, q.Assessment, tt.wantScore, tt.wantAssess)
			}
		})
	}
}

func TestEvaluateAnswerQualityFlags(t *testing.T) {
	q := EvaluateAnswerQuality("根据提供的资料无法确定反应压力", "")
	if !q.AcknowledgesUncertainty || !q.HasTechnicalTerms || q.ContextBased {
		t.Errorf("quality = %+v", q)
	}
	if q.AnswerLength != 15 {
		t.Errorf("AnswerLength = %d, want 15", q.AnswerLength)
	}
}
