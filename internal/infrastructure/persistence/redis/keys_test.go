package redis

import "testing"

func TestEmbeddingKeyPattern(t *testing.T) {
	if got := EmbeddingKeyPattern(""); got != "emb:*" {
		t.Errorf("EmbeddingKeyPattern(\"\") = %q", got)
	}
	if got := EmbeddingKeyPattern("feature-hashing-v1"); got != "emb:feature-hashing-v1:*" {
		t.Errorf("EmbeddingKeyPattern(model) = %q", got)
	}
}

func TestBuildRateLimitKey(t *testing.T) {
	if got := BuildRateLimitKey("10.0.0.1", "/v1/qa/ask"); got != "ratelimit:10.0.0.1:/v1/qa/ask" {
		t.Errorf("BuildRateLimitKey() = %q", got)
	}
}

func TestEmbeddingModelMarker(t *testing.T) {
	if got := EmbeddingModelKey("local"); got != "emb_model:local" {
		t.Errorf("EmbeddingModelKey() = %q", got)
	}
	tests := []struct {
		marker string
		want   string
	}{
		{"all-minilm:l6-v2:384", "all-minilm:l6-v2"},
		{"feature-hashing-v1:128", "feature-hashing-v1"},
		{"bare", "bare"},
	}
	for _, tt := range tests {
		if got := modelFromMarker(tt.marker); got != tt.want {
			t.Errorf("modelFromMarker(%q) = %q, want %q", tt.marker, got, tt.want)
		}
	}
}

func TestBuildLockKey(t *testing.T) {
	if got := BuildLockKey("doc1"); got != "lock:index_build:doc1" {
		t.Errorf("BuildLockKey() = %q", got)
	}
}
