package segment

import (
	"reflect"
	"testing"
)

func TestRecommendTags(t *testing.T) {
	text := "反应器内温度保持在85℃，注意安全防护。"

	tests := []struct {
		name    string
		maxTags int
		want    []string
	}{
		{"capped", 5, []string{"安全", "注意事项", "防护", "反应器", "设备"}},
		{"with features", 10, []string{"安全", "注意事项", "防护", "反应器", "设备", "数据", "工艺条件"}},
		{"zero", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecommendTags(text, tt.maxTags); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RecommendTags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecommendTagsFeatures(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"2H2 + O2 → 2H2O", "化学反应"},
		{"① 打开进料口", "列表"},
		{"保温 30 分钟", "时间"},
		{"硫酸 98%", "浓度"},
		{"系统压力 2 MPa", "工艺条件"},
		{"检查阀门", "设备"},
	}
	for _, tt := range tests {
		got := RecommendTags(tt.text, 10)
		found := false
		for _, tag := range got {
			if tag == tt.want {
				found = true
			}
		}
		if !found {
			t.Errorf("RecommendTags(%q) = %v, missing %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []string
	}{
		{"frequency order", "催化剂 活性 催化剂, 温度 123 温度 温度 a", 2, []string{"温度", "催化剂"}},
		{"tie keeps first seen", "beta alpha gamma", 3, []string{"beta", "alpha", "gamma"}},
		{"punctuation stripped", "pressure! pressure? flow.", 5, []string{"pressure", "flow"}},
		{"empty", "", 5, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.text, tt.n)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"A b c", "a B d", 0.5},
		{"same words", "words same", 1},
		{"", "x", 0},
		{"x", "y", 0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
