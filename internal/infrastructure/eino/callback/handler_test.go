package callback

import (
	"context"
	"testing"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
)

func TestProviderName(t *testing.T) {
	if got := providerName(nil); got != "unknown" {
		t.Errorf("providerName(nil) = %q", got)
	}
	if got := providerName(&einocb.RunInfo{Type: "OpenAI"}); got != "OpenAI" {
		t.Errorf("providerName() = %q", got)
	}
}

func TestElapsedSeconds(t *testing.T) {
	if got := elapsedSeconds(context.Background()); got != 0 {
		t.Errorf("elapsedSeconds(no start) = %v", got)
	}
	ctx := context.WithValue(context.Background(), startTimeKey{}, time.Now().Add(-time.Second))
	if got := elapsedSeconds(ctx); got < 1 {
		t.Errorf("elapsedSeconds() = %v, want >= 1", got)
	}
}

func TestModelNames(t *testing.T) {
	if modelNameFromInput(nil) != "" || modelNameFromOutput(&model.CallbackOutput{}) != "" {
		t.Error("empty callback payloads should yield empty model names")
	}
	in := &model.CallbackInput{Config: &model.Config{Model: "gpt-4o-mini"}}
	if got := modelNameFromInput(in); got != "gpt-4o-mini" {
		t.Errorf("modelNameFromInput() = %q", got)
	}
}
