package indexing

import (
	"context"
	"sort"
	"sync"
	"testing"

	"chem-rag-api/internal/application/segment"
	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
	"chem-rag-api/internal/infrastructure/embedding"
	"chem-rag-api/internal/infrastructure/messaging"
	"chem-rag-api/internal/infrastructure/parsing"
	"chem-rag-api/internal/infrastructure/persistence/redis"
	"chem-rag-api/internal/infrastructure/vectorstore"
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
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
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
	items := make([]*entity.Document, 0, len(m.docs))
	for _, d := range m.docs {
		items = append(items, d)
	}
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (m *memDocs) StatsByType(context.Context) ([]repository.DocumentTypeStat, error) {
	return nil, nil
}

type memSegments struct {
	mu      sync.Mutex
	byFile  map[string][]*entity.Segment
	deletes int
}

func (m *memSegments) SaveSegments(_ context.Context, segs []*entity.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range segs {
		m.byFile[s.FileID] = append(m.byFile[s.FileID], s)
	}
	return nil
}

func (m *memSegments) GetByFileID(_ context.Context, fileID string) ([]*entity.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*entity.Segment(nil), m.byFile[fileID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memSegments) GetByID(_ context.Context, id string) (*entity.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, segs := range m.byFile {
		for _, s := range segs {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return nil, nil
}

func (m *memSegments) UpdateTags(context.Context, string, []string) (bool, error) { return false, nil }

func (m *memSegments) BatchUpdateTags(context.Context, []repository.TagUpdate) (int, error) {
	return 0, nil
}

func (m *memSegments) DeleteByFileID(_ context.Context, fileID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.byFile[fileID])
	delete(m.byFile, fileID)
	m.deletes++
	return int64(n), nil
}

func (m *memSegments) SearchByKeyword(context.Context, string, int) ([]*entity.Segment, error) {
	return nil, nil
}

func (m *memSegments) GetByTags(context.Context, []string, int) ([]*entity.Segment, error) {
	return nil, nil
}

func (m *memSegments) Stats(context.Context) (*entity.SegmentStats, error) { return nil, nil }

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*entity.IndexJob
}

func (m *memJobs) Create(_ context.Context, j *entity.IndexJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id string) (*entity.IndexJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) Update(ctx context.Context, j *entity.IndexJob) error { return m.Create(ctx, j) }

func (m *memJobs) ListByFile(_ context.Context, fileID string, _ int) ([]*entity.IndexJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.IndexJob
	for _, j := range m.jobs {
		if j.FileID == fileID {
			out = append(out, j)
		}
	}
	return out, nil
}

type noTx struct{}

func (noTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeParser struct {
	texts map[string]string
}

func (p fakeParser) Parse(_ context.Context, path string, _ entity.FileType) (*parsing.Result, error) {
	text, ok := p.texts[path]
	if !ok {
		return nil, parsing.ErrFileNotFound
	}
	return &parsing.Result{Text: text}, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*messaging.IndexBuildMessage
	err  error
}

func (p *fakePublisher) PublishIndexBuild(_ context.Context, m *messaging.IndexBuildMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.msgs = append(p.msgs, m)
	return "1-0", nil
}

// fakeLocker 记录加解锁次数；同一文件被重复持有时按锁超时处理
type fakeLocker struct {
	mu       sync.Mutex
	err      error
	held     map[string]bool
	acquired int
	released int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Acquire(_ context.Context, fileID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[fileID] {
		return nil, redis.ErrLockTimeout
	}
	l.held[fileID] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, fileID)
		l.released++
	}, nil
}

type failingEncoder struct {
	SegmentEncoder
	err error
}

func (f failingEncoder) EncodeSegments(context.Context, []*entity.Segment, string, int) ([][]float32, []entity.VectorMetadata, error) {
	return nil, nil, f.err
}

const reactorText = `反应器是化工生产的核心设备，釜式反应器通常配有搅拌装置和夹套换热，用于控制反应温度在 80℃ 左右。

精馏塔利用混合物中各组分挥发度的差异实现分离，操作时需要稳定回流比和塔顶温度，避免液泛与漏液现象发生。

换热器的清洗周期取决于介质结垢速率，定期检测进出口温差可以判断传热效率是否下降，从而安排停车检修计划。`

type fixture struct {
	svc      *Service
	docs     *memDocs
	segments *memSegments
	jobs     *memJobs
	store    *vectorstore.Store
	pub      *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	emb := embedding.NewService(embedding.NewHashingProvider(128))
	store, err := vectorstore.NewStore(&config.VectorIndexConfig{Dir: t.TempDir()}, emb.Dimension())
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		docs:     &memDocs{docs: map[string]*entity.Document{}},
		segments: &memSegments{byFile: map[string][]*entity.Segment{}},
		jobs:     &memJobs{jobs: map[string]*entity.IndexJob{}},
		store:    store,
		pub:      &fakePublisher{},
	}
	f.docs.docs["doc1"] = &entity.Document{ID: "doc1", OriginalName: "reactor.txt", StoredPath: "/data/doc1.txt", FileType: entity.FileTypeTXT, Status: entity.DocumentStatusUploaded}
	f.docs.docs["empty"] = &entity.Document{ID: "empty", OriginalName: "empty.txt", StoredPath: "/data/empty.txt", FileType: entity.FileTypeTXT, Status: entity.DocumentStatusUploaded}

	f.svc = NewService(Deps{
		Documents: f.docs,
		Segments:  f.segments,
		Jobs:      f.jobs,
		Tx:        noTx{},
		Parser: fakeParser{texts: map[string]string{
			"/data/doc1.txt":  reactorText,
			"/data/empty.txt": "   ",
		}},
		Segmenter: segment.NewSegmenter(segment.DefaultConfig()),
		Encoder:   emb,
		Store:     store,
		Publisher: f.pub,
	})
	return f
}
