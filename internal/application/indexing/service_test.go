package indexing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/infrastructure/messaging"
	"chem-rag-api/internal/infrastructure/persistence/redis"
	apperrors "chem-rag-api/pkg/errors"
)

func TestSegmentDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SegmentDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("SegmentDocument() error = %v", err)
	}
	if res.SegmentCount == 0 || res.SegmentCount != len(res.Segments) {
		t.Fatalf("SegmentCount = %d, segments = %d", res.SegmentCount, len(res.Segments))
	}
	if res.FileName != "reactor.txt" {
		t.Errorf("FileName = %q", res.FileName)
	}

	doc, _ := f.docs.GetByID(ctx, "doc1")
	if doc.Status != entity.DocumentStatusSegmented || doc.SegmentCount != res.SegmentCount {
		t.Errorf("document = %+v, want segmented with %d segments", doc, res.SegmentCount)
	}

	// 重新分段替换已有分段而不是追加
	again, err := f.svc.SegmentDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	stored, _ := f.segments.GetByFileID(ctx, "doc1")
	if len(stored) != again.SegmentCount {
		t.Errorf("stored segments = %d, want %d", len(stored), again.SegmentCount)
	}
}

func TestSegmentDocumentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		fileID string
		code   apperrors.ErrorCode
	}{
		{"missing document", "nope", apperrors.CodeDocumentNotFound},
		{"empty text", "empty", apperrors.CodeSegmentationFailed},
		{"blank id", "", apperrors.CodeInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SegmentDocument(ctx, tt.fileID)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperrors.AsAppError(err).Code; got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}

	doc, _ := f.docs.GetByID(ctx, "empty")
	if doc.Status != entity.DocumentStatusFailed {
		t.Errorf("empty document status = %s, want failed", doc.Status)
	}
}

func TestBuildIndexRequiresSegments(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BuildIndex(context.Background(), "doc1", false, 0)
	if !errors.Is(err, apperrors.ErrNoSegments) {
		t.Fatalf("BuildIndex() error = %v, want ErrNoSegments", err)
	}
	if f.store.IndexExists("doc1") {
		t.Error("index should not be created")
	}
}

func TestBuildIndexLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seg, err := f.svc.SegmentDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.BuildIndex(ctx, "doc1", false, 2)
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if !res.Created || res.EmbeddedCount != seg.SegmentCount || res.Dimension != 128 {
		t.Fatalf("BuildIndex() = %+v", res)
	}
	if !res.IndexInfo.Exists || res.IndexInfo.VectorCount != seg.SegmentCount {
		t.Errorf("IndexInfo = %+v", res.IndexInfo)
	}
	doc, _ := f.docs.GetByID(ctx, "doc1")
	if doc.Status != entity.DocumentStatusIndexed {
		t.Errorf("status = %s, want indexed", doc.Status)
	}

	t.Run("existing index is kept", func(t *testing.T) {
		again, err := f.svc.BuildIndex(ctx, "doc1", false, 0)
		if err != nil {
			t.Fatal(err)
		}
		if again.Created || again.Message != MsgIndexExists {
			t.Errorf("BuildIndex() = %+v, want existing message", again)
		}
		if info := f.store.GetIndexInfo(ctx, "doc1"); info.VectorCount != seg.SegmentCount {
			t.Errorf("vector count = %d, want %d", info.VectorCount, seg.SegmentCount)
		}
	})

	t.Run("recreate replaces vectors", func(t *testing.T) {
		again, err := f.svc.BuildIndex(ctx, "doc1", true, 0)
		if err != nil {
			t.Fatal(err)
		}
		if !again.Created || again.IndexInfo.VectorCount != seg.SegmentCount {
			t.Errorf("BuildIndex(recreate) = %+v", again)
		}
	})

	t.Run("delete index", func(t *testing.T) {
		if err := f.svc.DeleteIndex(ctx, "doc1"); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.GetIndexInfo(ctx, "doc1"); !errors.Is(err, apperrors.ErrIndexNotFound) {
			t.Errorf("GetIndexInfo() error = %v, want ErrIndexNotFound", err)
		}
		if err := f.svc.DeleteIndex(ctx, "doc1"); !errors.Is(err, apperrors.ErrIndexNotFound) {
			t.Errorf("second DeleteIndex() error = %v", err)
		}
		doc, _ := f.docs.GetByID(ctx, "doc1")
		if doc.Status != entity.DocumentStatusSegmented {
			t.Errorf("status = %s, want segmented", doc.Status)
		}
	})
}

func TestConcurrentRecreateAndBuild(t *testing.T) {
	f := newFixture(t)
	lock := newFakeLocker()
	f.svc.locker = lock
	ctx := context.Background()

	seg, err := f.svc.SegmentDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(recreate bool) {
			defer wg.Done()
			_, err := f.svc.BuildIndex(ctx, "doc1", recreate, 0)
			errs <- err
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("BuildIndex() error = %v", err)
		}
	}

	n, err := f.store.Verify(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if n != seg.SegmentCount {
		t.Errorf("vector count = %d, want %d", n, seg.SegmentCount)
	}
	if lock.acquired == 0 || lock.acquired != lock.released {
		t.Errorf("lock acquired = %d, released = %d", lock.acquired, lock.released)
	}
}

func TestBuildIndexLockErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"held by another process", fmt.Errorf("%w: lock:index_build:doc1", redis.ErrLockTimeout), ErrBuildInProgress},
		{"redis unreachable", errors.New("dial tcp 127.0.0.1:6379: connection refused"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			lock := newFakeLocker()
			lock.err = tt.err
			f.svc.locker = lock
			ctx := context.Background()
			if _, err := f.svc.SegmentDocument(ctx, "doc1"); err != nil {
				t.Fatal(err)
			}

			_, err := f.svc.BuildIndex(ctx, "doc1", false, 0)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("BuildIndex() error = %v", err)
				}
				if !f.store.IndexExists("doc1") {
					t.Error("index should be built with the process lock")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("BuildIndex() error = %v, want %v", err, tt.wantErr)
			}
			if f.store.IndexExists("doc1") {
				t.Error("index should not be built while another process holds the lock")
			}
		})
	}
}

func TestEnqueueBuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.EnqueueBuild(ctx, "doc1", true, 0)
	if err != nil {
		t.Fatalf("EnqueueBuild() error = %v", err)
	}
	if job.Status != entity.JobStatusPending || !job.Recreate() || job.BatchSize != DefaultBatchSize {
		t.Errorf("job = %+v", job)
	}
	if len(f.pub.msgs) != 1 || f.pub.msgs[0].JobID != job.ID || !f.pub.msgs[0].Recreate {
		t.Fatalf("published = %+v", f.pub.msgs)
	}
	if stored, _ := f.jobs.GetByID(ctx, job.ID); stored == nil {
		t.Error("job not persisted")
	}

	f.pub.err = errors.New("redis down")
	if _, err := f.svc.EnqueueBuild(ctx, "doc1", false, 0); err == nil {
		t.Error("expected publish error")
	}

	if _, err := f.svc.EnqueueBuild(ctx, "nope", false, 0); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("unknown document error = %v", err)
	}

	noAsync := NewService(Deps{Documents: f.docs})
	if _, err := noAsync.EnqueueBuild(ctx, "doc1", false, 0); !errors.Is(err, ErrAsyncUnavailable) {
		t.Errorf("error = %v, want ErrAsyncUnavailable", err)
	}
}

func buildMessage(t *testing.T, job *entity.IndexJob) *messaging.Message {
	t.Helper()
	msg, err := messaging.NewMessage(job.ID, messaging.MessageTypeIndexBuild, job.FileID, &messaging.IndexBuildMessage{
		JobID:     job.ID,
		FileID:    job.FileID,
		Recreate:  job.Recreate(),
		BatchSize: job.BatchSize,
	})
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestHandleIndexBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("completes job", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.SegmentDocument(ctx, "doc1"); err != nil {
			t.Fatal(err)
		}
		job, err := f.svc.EnqueueBuild(ctx, "doc1", false, 0)
		if err != nil {
			t.Fatal(err)
		}

		if err := f.svc.HandleIndexBuild(ctx, buildMessage(t, job)); err != nil {
			t.Fatalf("HandleIndexBuild() error = %v", err)
		}
		got, _ := f.jobs.GetByID(ctx, job.ID)
		if got.Status != entity.JobStatusCompleted || got.Progress != 100 || len(got.OutputResult) == 0 {
			t.Errorf("job = %+v", got)
		}
		if !f.store.IndexExists("doc1") {
			t.Error("index not built")
		}
	})

	t.Run("missing segments fails without retry", func(t *testing.T) {
		f := newFixture(t)
		job, err := f.svc.EnqueueBuild(ctx, "doc1", false, 0)
		if err != nil {
			t.Fatal(err)
		}

		if err := f.svc.HandleIndexBuild(ctx, buildMessage(t, job)); err != nil {
			t.Fatalf("HandleIndexBuild() error = %v, want nil for permanent failure", err)
		}
		got, _ := f.jobs.GetByID(ctx, job.ID)
		if got.Status != entity.JobStatusFailed || got.RetryCount != 0 {
			t.Errorf("job = %+v", got)
		}
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.SegmentDocument(ctx, "doc1"); err != nil {
			t.Fatal(err)
		}
		job, err := f.svc.EnqueueBuild(ctx, "doc1", false, 0)
		if err != nil {
			t.Fatal(err)
		}
		f.svc.encoder = failingEncoder{SegmentEncoder: f.svc.encoder, err: errors.New("embedding backend timeout")}

		if err := f.svc.HandleIndexBuild(ctx, buildMessage(t, job)); err == nil {
			t.Fatal("expected error so the message stays pending")
		}
		got, _ := f.jobs.GetByID(ctx, job.ID)
		if got.Status != entity.JobStatusPending || got.RetryCount != 1 || got.ErrorMessage == "" {
			t.Errorf("job = %+v", got)
		}
	})

	t.Run("invalid payload is dropped", func(t *testing.T) {
		f := newFixture(t)
		msg := &messaging.Message{ID: "x", Type: messaging.MessageTypeIndexBuild, Payload: []byte("{")}
		if err := f.svc.HandleIndexBuild(ctx, msg); err != nil {
			t.Errorf("HandleIndexBuild() error = %v", err)
		}
	})
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Health(context.Background(), false)
	if h.Status != "healthy" || h.Dimension != 128 || h.PrimaryAvailable || h.TotalIndices != 0 {
		t.Errorf("Health() = %+v", h)
	}
	if h.EmbeddingModel == "" {
		t.Error("empty model name")
	}
}
