// Package chain 组装提示词与模型调用
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	wfmodel "chem-rag-api/internal/workflow/model"
	workflowport "chem-rag-api/internal/workflow/port"
	workflowprompt "chem-rag-api/internal/workflow/prompt"
)

type QAChain struct {
	factory workflowport.ChatModelFactory
}

func NewQAChain(factory workflowport.ChatModelFactory) *QAChain {
	return &QAChain{factory: factory}
}

var qaPromptRegistry = workflowprompt.NewRegistry()

// FormatMessages 渲染提示词；有资料时使用 RAG 模板，否则直接回答
func (c *QAChain) FormatMessages(ctx context.Context, in *wfmodel.QAGenerateInput) ([]*schema.Message, error) {
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if strings.TrimSpace(in.Question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	id := workflowprompt.PromptDirectAnswerV1
	vars := map[string]any{"question": strings.TrimSpace(in.Question)}
	if in.HasContext() {
		id = workflowprompt.PromptRAGAnswerV1
		vars["context"] = in.Context
	}

	tpl, err := qaPromptRegistry.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	return tpl.Format(ctx, vars)
}

func (c *QAChain) Generate(ctx context.Context, in *wfmodel.QAGenerateInput, msgs []*schema.Message) (*schema.Message, error) {
	chatModel, err := c.chatModel(ctx, in)
	if err != nil {
		return nil, err
	}
	outMsg, err := chatModel.Generate(ctx, msgs, buildQAModelOptions(in)...)
	if err != nil {
		return nil, err
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response")
	}
	return outMsg, nil
}

// Stream 返回 Eino StreamReader；调用方负责 Close()。
// 约定：流可能在最后返回一个 Content 为空但包含 Usage 的消息，用于 Token 统计。
func (c *QAChain) Stream(ctx context.Context, in *wfmodel.QAGenerateInput, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	chatModel, err := c.chatModel(ctx, in)
	if err != nil {
		return nil, err
	}
	return chatModel.Stream(ctx, msgs, buildQAModelOptions(in)...)
}

func (c *QAChain) chatModel(ctx context.Context, in *wfmodel.QAGenerateInput) (model.BaseChatModel, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	return c.factory.Get(ctx, strings.TrimSpace(in.Provider))
}

func buildQAModelOptions(in *wfmodel.QAGenerateInput) []model.Option {
	opts := make([]model.Option, 0, 4)
	if in == nil {
		return opts
	}
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	if in.TopP != nil {
		opts = append(opts, model.WithTopP(*in.TopP))
	}
	if strings.TrimSpace(in.Model) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(in.Model)))
	}
	return opts
}
