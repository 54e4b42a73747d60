package vectorstore

import (
	"fmt"
	"math"
	"strings"
)

// Metric 相似度度量
type Metric string

const (
	// MetricCosine 余弦：向量入库前归一化，得分为内积
	MetricCosine Metric = "cosine"
	// MetricIP 原始内积
	MetricIP Metric = "ip"
	// MetricL2 欧氏距离，得分为 1-d²/2，单位向量上与余弦一致
	MetricL2 Metric = "l2"
)

// ParseMetric 解析度量名称，空值为 cosine
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricIP:
		return MetricIP, nil
	case MetricL2:
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unsupported metric: %s", s)
	}
}

// score 越大越相似
func (m Metric) score(a, b []float32) float64 {
	switch m {
	case MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 - sum/2
	default:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot
	}
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
