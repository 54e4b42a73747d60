package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestRAGAnswerTemplate(t *testing.T) {
	tpl, err := NewRegistry().ChatTemplate(PromptRAGAnswerV1)
	if err != nil {
		t.Fatalf("ChatTemplate() error = %v", err)
	}
	msgs, err := tpl.Format(context.Background(), map[string]any{
		"context":  "1. 反应温度控制在 80℃",
		"question": "反应温度是多少？",
	})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != schema.System || msgs[1].Role != schema.User {
		t.Fatalf("messages = %+v", msgs)
	}
	user := msgs[1].Content
	for _, want := range []string{"## 资料内容：\n1. 反应温度控制在 80℃", "## 用户提问：\n反应温度是多少？", "根据提供的资料无法确定"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestDirectAnswerTemplate(t *testing.T) {
	tpl, err := NewRegistry().ChatTemplate(PromptDirectAnswerV1)
	if err != nil {
		t.Fatalf("ChatTemplate() error = %v", err)
	}
	msgs, err := tpl.Format(context.Background(), map[string]any{"question": "什么是精馏？"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got := msgs[1].Content; got != "作为化工领域专家，请回答以下问题：\n\n什么是精馏？" {
		t.Errorf("user prompt = %q", got)
	}
}

func TestUnknownPrompt(t *testing.T) {
	if _, err := NewRegistry().ChatTemplate("nope"); err == nil {
		t.Error("ChatTemplate(unknown) should fail")
	}
}
