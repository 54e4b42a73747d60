package model

// QAGenerateInput 问答生成输入，Context 为空时直接回答
type QAGenerateInput struct {
	Question string
	Context  string

	Provider string
	Model    string

	Temperature *float32
	MaxTokens   *int
	TopP        *float32
}

// HasContext 是否基于检索资料回答
func (in *QAGenerateInput) HasContext() bool {
	return in != nil && in.Context != ""
}
