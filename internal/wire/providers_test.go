package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chem-rag-api/internal/config"
	"chem-rag-api/internal/infrastructure/embedding"
)

// trackingCache 透传加载并记录模型登记
type trackingCache struct {
	tracked []string
}

func (c *trackingCache) GetOrLoadSafe(_ context.Context, _ string, _ time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	v, err := loader()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c *trackingCache) TrackEmbeddingModel(_ context.Context, label, model string, dim int) (int, error) {
	c.tracked = append(c.tracked, fmt.Sprintf("%s=%s:%d", label, model, dim))
	return 0, nil
}

func statusServer(t *testing.T, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProvideEmbeddersLocalReady(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Local = config.LocalEmbeddingConfig{Provider: embedding.ProviderHash, Dimension: 64}
	cfg.Cache.EmbeddingTTL = time.Hour
	cache := &trackingCache{}

	emb, err := ProvideEmbedders(context.Background(), cfg, cache)
	if err != nil {
		t.Fatalf("ProvideEmbedders() error = %v", err)
	}
	if emb.Primary != nil {
		t.Error("primary should be nil when not configured")
	}
	if !emb.Local.Ready() {
		t.Error("local embedding should be ready after startup")
	}
	want := fmt.Sprintf("local=%s:64", embedding.HashingModelName)
	if len(cache.tracked) != 1 || cache.tracked[0] != want {
		t.Errorf("tracked = %v, want [%s]", cache.tracked, want)
	}
}

func TestProvideEmbeddersLocalDownIsFatal(t *testing.T) {
	srv := statusServer(t, http.StatusServiceUnavailable)
	cfg := &config.Config{}
	cfg.Embedding.Local = config.LocalEmbeddingConfig{
		Provider:  embedding.ProviderHTTP,
		Endpoint:  srv.URL,
		Dimension: 384,
		Timeout:   2 * time.Second,
	}

	emb, err := ProvideEmbedders(context.Background(), cfg, nil)
	if err == nil {
		t.Fatalf("ProvideEmbedders() = %+v, want error", emb)
	}
}

func TestProvideEmbeddersPrimaryDownIsDegraded(t *testing.T) {
	srv := statusServer(t, http.StatusUnauthorized)
	cfg := &config.Config{}
	cfg.Embedding.Local = config.LocalEmbeddingConfig{Provider: embedding.ProviderHash, Dimension: 64}
	cfg.Embedding.Primary = config.PrimaryEmbeddingConfig{
		Enabled:   true,
		APIKey:    "sk-test",
		BaseURL:   srv.URL,
		Model:     "text-embedding-3-small",
		Dimension: 64,
		Timeout:   2 * time.Second,
	}

	emb, err := ProvideEmbedders(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("ProvideEmbedders() error = %v", err)
	}
	if emb.Primary == nil {
		t.Fatal("primary should be kept for later recovery")
	}
	if emb.Primary.Ready() {
		t.Error("primary should not be ready after failed warmup")
	}
	if !emb.Local.Ready() {
		t.Error("local embedding should be ready")
	}
}

func TestProvideBuildLockerWithoutRedis(t *testing.T) {
	if l := ProvideBuildLocker(nil, &config.Config{}); l != nil {
		t.Errorf("ProvideBuildLocker(nil) = %v, want nil", l)
	}
}
