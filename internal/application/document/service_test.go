package document

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
	"chem-rag-api/internal/infrastructure/parsing"
	apperrors "chem-rag-api/pkg/errors"
)

type memDocs struct {
	mu   sync.Mutex
	docs map[string]*entity.Document
}

func (m *memDocs) Create(_ context.Context, d *entity.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id string) (*entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (m *memDocs) Update(ctx context.Context, d *entity.Document) error { return m.Create(ctx, d) }

func (m *memDocs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memDocs) List(_ context.Context, _ *repository.DocumentFilter, p repository.Pagination) (*repository.PagedResult[*entity.Document], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*entity.Document
	for _, d := range m.docs {
		items = append(items, d)
	}
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (m *memDocs) StatsByType(context.Context) ([]repository.DocumentTypeStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg := map[entity.FileType]*repository.DocumentTypeStat{}
	var out []repository.DocumentTypeStat
	for _, d := range m.docs {
		st, ok := agg[d.FileType]
		if !ok {
			st = &repository.DocumentTypeStat{FileType: d.FileType}
			agg[d.FileType] = st
		}
		st.Count++
		st.TotalSize += d.FileSize
	}
	for _, st := range agg {
		out = append(out, *st)
	}
	return out, nil
}

// segmentDeleter 只实现删除，其余方法不会被调用
type segmentDeleter struct {
	repository.SegmentRepository
	deleted []string
}

func (s *segmentDeleter) DeleteByFileID(_ context.Context, fileID string) (int64, error) {
	s.deleted = append(s.deleted, fileID)
	return 3, nil
}

type fakeIndex struct {
	existing map[string]bool
}

func (f *fakeIndex) DeleteIndex(_ context.Context, fileID string) (bool, error) {
	ok := f.existing[fileID]
	delete(f.existing, fileID)
	return ok, nil
}

func newTestService(t *testing.T, maxSize int64) (*Service, *memDocs, *segmentDeleter, *fakeIndex) {
	t.Helper()
	docs := &memDocs{docs: map[string]*entity.Document{}}
	segs := &segmentDeleter{}
	idx := &fakeIndex{existing: map[string]bool{}}
	svc := NewService(docs, segs, idx, parsing.NewParser(), config.StorageConfig{
		UploadDir:     t.TempDir(),
		MaxUploadSize: maxSize,
	})
	return svc, docs, segs, idx
}

const sample = "反应釜升温速率不应超过 2℃/min。\n\n投料前确认氮气置换合格。\n"

func TestUpload(t *testing.T) {
	svc, docs, _, _ := newTestService(t, 1024)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "安全规程.txt", strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.FileType != entity.FileTypeTXT || doc.Status != entity.DocumentStatusUploaded || doc.FileSize != int64(len(sample)) {
		t.Errorf("doc = %+v", doc)
	}
	if !strings.HasSuffix(doc.StoredPath, doc.ID+".txt") {
		t.Errorf("StoredPath = %q, want uuid name", doc.StoredPath)
	}
	raw, err := os.ReadFile(doc.StoredPath)
	if err != nil || string(raw) != sample {
		t.Fatalf("stored content = %q, %v", raw, err)
	}
	if _, ok := docs.docs[doc.ID]; !ok {
		t.Error("document not persisted")
	}
}

func TestUploadRejects(t *testing.T) {
	svc, docs, _, _ := newTestService(t, 16)

	tests := []struct {
		name string
		file string
		body string
		code apperrors.ErrorCode
	}{
		{"unsupported type", "report.xlsx", "abc", apperrors.CodeUnsupportedType},
		{"too large", "big.txt", strings.Repeat("x", 17), apperrors.CodePayloadTooLarge},
		{"empty", "empty.txt", "", apperrors.CodeInvalidParam},
		{"no name", "", "abc", apperrors.CodeInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), tt.file, bytes.NewBufferString(tt.body))
			if got := apperrors.AsAppError(err).Code; err == nil || got != tt.code {
				t.Fatalf("Upload() error = %v, want code %s", err, tt.code)
			}
		})
	}

	if len(docs.docs) != 0 {
		t.Errorf("rejected uploads persisted %d documents", len(docs.docs))
	}
	entries, _ := os.ReadDir(svc.cfg.UploadDir)
	if len(entries) != 0 {
		t.Errorf("rejected uploads left %d files", len(entries))
	}
}

func TestParse(t *testing.T) {
	svc, docs, _, _ := newTestService(t, 1024)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "规程.txt", strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Parse(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Encoding != "utf-8" || res.Summary.NonEmptyLines != 2 || !strings.HasPrefix(res.Preview, "反应釜") {
		t.Errorf("Parse() = %+v", res)
	}
	if got := docs.docs[doc.ID].Status; got != entity.DocumentStatusParsed {
		t.Errorf("status = %s, want parsed", got)
	}

	if err := os.Remove(doc.StoredPath); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Parse(ctx, doc.ID); !errors.Is(err, apperrors.New(apperrors.CodeFileNotFound, "")) {
		t.Errorf("Parse() on missing file error = %v", err)
	}
	if got := docs.docs[doc.ID].Status; got != entity.DocumentStatusFailed {
		t.Errorf("status = %s, want failed", got)
	}
}

func TestDelete(t *testing.T) {
	svc, docs, segs, idx := newTestService(t, 1024)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "a.txt", strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	idx.existing[doc.ID] = true

	res, err := svc.Delete(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !res.IndexDeleted || !res.FileDeleted || res.SegmentsDeleted != 3 {
		t.Errorf("Delete() = %+v", res)
	}
	if len(segs.deleted) != 1 || segs.deleted[0] != doc.ID {
		t.Errorf("segments deleted for %v", segs.deleted)
	}
	if _, err := os.Stat(doc.StoredPath); !os.IsNotExist(err) {
		t.Error("stored file still exists")
	}
	if _, ok := docs.docs[doc.ID]; ok {
		t.Error("document still exists")
	}

	if _, err := svc.Delete(ctx, doc.ID); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestStatsAndDownload(t *testing.T) {
	svc, _, _, _ := newTestService(t, 1024)
	ctx := context.Background()

	a, _ := svc.Upload(ctx, "a.txt", strings.NewReader("abc"))
	if _, err := svc.Upload(ctx, "b.txt", strings.NewReader("defg")); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalFiles != 2 || st.TotalSize != 7 || len(st.ByType) != 1 {
		t.Errorf("Stats() = %+v", st)
	}

	got, path, err := svc.DownloadPath(ctx, a.ID)
	if err != nil || got.ID != a.ID || path != a.StoredPath {
		t.Errorf("DownloadPath() = %v, %q, %v", got, path, err)
	}
	if _, _, err := svc.DownloadPath(ctx, "missing"); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("DownloadPath(missing) error = %v", err)
	}
}
