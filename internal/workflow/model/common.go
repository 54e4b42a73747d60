// Package model 定义工作流的输入输出结构
package model

import "time"

// LLMUsageMeta 单次调用的模型与用量
type LLMUsageMeta struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Temperature      float64
	FinishReason     string
	GeneratedAt      time.Time
}

// TotalTokens 总 token 数
func (m LLMUsageMeta) TotalTokens() int {
	return m.PromptTokens + m.CompletionTokens
}
