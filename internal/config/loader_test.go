package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("CHEM_RAG_TEST_HOST", "db.internal")

	tests := []struct {
		in   string
		want string
	}{
		{"host: ${CHEM_RAG_TEST_HOST}", "host: db.internal"},
		{"host: ${CHEM_RAG_TEST_HOST:localhost}", "host: db.internal"},
		{"port: ${CHEM_RAG_TEST_UNSET:5432}", "port: 5432"},
		{"key: ${CHEM_RAG_TEST_UNSET:}", "key: "},
		{"key: ${CHEM_RAG_TEST_UNSET}", "key: ${CHEM_RAG_TEST_UNSET}"},
	}
	for _, tt := range tests {
		if got := expandEnv(tt.in); got != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Segmentation.MinSegmentLength != 50 || cfg.Segmentation.MaxSegmentLength != 500 ||
		cfg.Segmentation.TargetSegmentLength != 300 || cfg.Segmentation.OverlapLength != 50 {
		t.Errorf("segmentation defaults = %+v", cfg.Segmentation)
	}
	if cfg.Retrieval.QualityFloor != 0.02 {
		t.Errorf("QualityFloor = %v, want 0.02", cfg.Retrieval.QualityFloor)
	}
	if cfg.Retrieval.MinTextLength != 20 {
		t.Errorf("MinTextLength = %d, want 20", cfg.Retrieval.MinTextLength)
	}
	if cfg.Embedding.Local.Dimension != 384 {
		t.Errorf("Local.Dimension = %d, want 384", cfg.Embedding.Local.Dimension)
	}
	if cfg.VectorIndex.Metric != "cosine" {
		t.Errorf("Metric = %q, want cosine", cfg.VectorIndex.Metric)
	}
	if cfg.Embedding.Local.Timeout != 30*time.Second {
		t.Errorf("Local.Timeout = %v, want 30s", cfg.Embedding.Local.Timeout)
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
segmentation:
  min_segment_length: 40
  max_segment_length: 400
  target_segment_length: 200
vector_index:
  dir: ${CHEM_RAG_TEST_INDEX_DIR:/var/lib/idx}
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHEM_RAG_TEST_INDEX_DIR", "/tmp/idx")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Segmentation.MinSegmentLength != 40 {
		t.Errorf("MinSegmentLength = %d, want 40", cfg.Segmentation.MinSegmentLength)
	}
	if cfg.Segmentation.OverlapLength != 50 {
		t.Errorf("OverlapLength = %d, want default 50", cfg.Segmentation.OverlapLength)
	}
	if cfg.VectorIndex.Dir != "/tmp/idx" {
		t.Errorf("VectorIndex.Dir = %q, want /tmp/idx", cfg.VectorIndex.Dir)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFrom(t.TempDir())
		if err != nil {
			t.Fatalf("LoadFrom() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min zero", func(c *Config) { c.Segmentation.MinSegmentLength = 0 }},
		{"max below min", func(c *Config) { c.Segmentation.MaxSegmentLength = 10 }},
		{"target above max", func(c *Config) { c.Segmentation.TargetSegmentLength = 900 }},
		{"bad metric", func(c *Config) { c.VectorIndex.Metric = "hamming" }},
		{"zero dim", func(c *Config) { c.Embedding.Local.Dimension = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
