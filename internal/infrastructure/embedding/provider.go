// Package embedding 提供文本向量化：多种 Provider 实现以及统一的 Embedder 服务
package embedding

import (
	"context"
	"errors"
)

// ErrDimensionMismatch Provider 返回的向量维度与声明不一致
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Provider 文本向量化后端
type Provider interface {
	// Embed 按输入顺序返回向量，长度与 texts 一致
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName 模型名称
	ModelName() string

	// Dimensions 向量维度
	Dimensions() int
}
