package messaging

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.CalculateBackoff(tt.retry); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestIndexBuildMessageRoundTrip(t *testing.T) {
	job := &IndexBuildMessage{JobID: "job-1", FileID: "f1", Recreate: true, BatchSize: 16}
	msg, err := NewMessage(job.JobID, MessageTypeIndexBuild, job.FileID, job)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	msg.SetMetadata("recreate", "true")

	var got IndexBuildMessage
	if err := msg.UnmarshalPayload(&got); err != nil {
		t.Fatalf("UnmarshalPayload() error = %v", err)
	}
	if got != *job {
		t.Errorf("payload = %+v, want %+v", got, *job)
	}
	if msg.GetMetadata("recreate") != "true" || msg.GetMetadata("missing") != "" {
		t.Errorf("metadata = %v", msg.Metadata)
	}
}

func TestDecode(t *testing.T) {
	if _, err := decode(redis.XMessage{ID: "1-0", Values: map[string]interface{}{}}); err == nil {
		t.Error("decode() without data field should fail")
	}
	if _, err := decode(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": "{"}}); err == nil {
		t.Error("decode() with bad json should fail")
	}
	msg, err := decode(redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"data": `{"id":"j","type":"index.build","file_id":"f1","payload":{}}`,
	}})
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if msg.Type != MessageTypeIndexBuild || msg.FileID != "f1" {
		t.Errorf("decode() = %+v", msg)
	}
}

func TestStreamNames(t *testing.T) {
	if got := StreamIndexBuild.DLQStream(); got != "dlq:stream:index:build" {
		t.Errorf("DLQStream() = %q", got)
	}
	if got := IndexWorkerGroup("chem_rag"); got != "chem_rag-index-worker" {
		t.Errorf("IndexWorkerGroup() = %q", got)
	}
	if got := IndexWorkerGroup(""); got != "cg-index-worker" {
		t.Errorf("IndexWorkerGroup(\"\") = %q", got)
	}
}
