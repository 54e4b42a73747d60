package vectorstore

import (
	"fmt"
	"slices"
)

// FlatIndex 暴力检索索引，行号即插入顺序
type FlatIndex struct {
	dim    int
	metric Metric
	data   []float32
}

// NewFlatIndex 创建空索引
func NewFlatIndex(dim int, metric Metric) *FlatIndex {
	return &FlatIndex{dim: dim, metric: metric}
}

// Dim 向量维度
func (x *FlatIndex) Dim() int { return x.dim }

// Metric 度量
func (x *FlatIndex) Metric() Metric { return x.metric }

// Len 向量数量
func (x *FlatIndex) Len() int {
	if x.dim == 0 {
		return 0
	}
	return len(x.data) / x.dim
}

// Vector 返回第 i 行（只读）
func (x *FlatIndex) Vector(i int) []float32 {
	return x.data[i*x.dim : (i+1)*x.dim]
}

// withAdded 返回追加后的新索引，原索引不变
func (x *FlatIndex) withAdded(vectors [][]float32) (*FlatIndex, error) {
	data := make([]float32, len(x.data), len(x.data)+len(vectors)*x.dim)
	copy(data, x.data)
	for i, v := range vectors {
		if len(v) != x.dim {
			return nil, fmt.Errorf("%w: vector %d has %d, index has %d", ErrDimensionMismatch, i, len(v), x.dim)
		}
		if x.metric == MetricCosine {
			v = normalized(v)
		}
		data = append(data, v...)
	}
	return &FlatIndex{dim: x.dim, metric: x.metric, data: data}, nil
}

type scored struct {
	row   int
	score float64
}

// Search 返回得分最高的 k 行；得分相同时行号小者在前
func (x *FlatIndex) Search(query []float32, k int) ([]scored, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}
	n := x.Len()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	k = min(k, n)

	if x.metric == MetricCosine {
		query = normalized(query)
	}
	all := make([]scored, n)
	for i := 0; i < n; i++ {
		all[i] = scored{row: i, score: x.metric.score(query, x.Vector(i))}
	}
	slices.SortStableFunc(all, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})
	return all[:k], nil
}
