package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromContextAddsKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("debug", "json", &buf)

	ctx := WithContext(context.Background(), RequestIDKey, "req-1")
	ctx = WithFileID(ctx, "file-9")
	Error(ctx, "index build failed", errors.New("disk full"), "segments", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	checks := map[string]any{
		"request_id": "req-1",
		"file_id":    "file-9",
		"error":      "disk full",
		"msg":        "index build failed",
		"segments":   float64(3),
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("%s = %v, want %v", k, rec[k], want)
		}
	}
}
