package llm

import (
	"context"
	"errors"
	"testing"

	"chem-rag-api/internal/config"
)

func TestEinoFactoryAvailability(t *testing.T) {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			DefaultProvider: "openai",
			Providers: map[string]config.ProviderConfig{
				"openai": {Model: "gpt-4o-mini"},
			},
		},
	}
	f := NewEinoFactory(cfg)
	if f.Available() {
		t.Error("Available() = true without api key")
	}
	if f.DefaultModelName() != "gpt-4o-mini" {
		t.Errorf("DefaultModelName() = %q", f.DefaultModelName())
	}

	if _, err := f.Default(context.Background()); !errors.Is(err, ErrProviderNotConfigured) {
		t.Errorf("Default() error = %v, want ErrProviderNotConfigured", err)
	}
	if _, err := f.Get(context.Background(), "missing"); !errors.Is(err, ErrProviderNotConfigured) {
		t.Errorf("Get(missing) error = %v, want ErrProviderNotConfigured", err)
	}
}
