package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/infrastructure/embedding"
	"chem-rag-api/internal/infrastructure/vectorstore"
)

// fakeIndex 固定返回预设命中
type fakeIndex struct {
	dim      int
	hits     map[string][]entity.SearchHit
	fail     map[string]error
	fileDims map[string]int
}

func (f *fakeIndex) Search(ctx context.Context, fileID string, q []float32, topK int) ([]entity.SearchHit, error) {
	if err := f.fail[fileID]; err != nil {
		return nil, err
	}
	hits := f.hits[fileID]
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *fakeIndex) IndexExists(fileID string) bool {
	_, ok := f.hits[fileID]
	return ok
}

func (f *fakeIndex) GetIndexInfo(ctx context.Context, fileID string) entity.IndexInfo {
	if !f.IndexExists(fileID) {
		return entity.IndexInfo{FileID: fileID}
	}
	dim := f.dim
	if d, ok := f.fileDims[fileID]; ok {
		dim = d
	}
	return entity.IndexInfo{FileID: fileID, Exists: true, Dimension: dim, VectorCount: len(f.hits[fileID])}
}

func (f *fakeIndex) ListFileIDs(ctx context.Context) []string {
	ids := make([]string, 0, len(f.hits))
	for id := range f.hits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeIndex) Dimension() int { return f.dim }

// fakeEncoder 返回固定维度的向量或错误
type fakeEncoder struct {
	name  string
	dim   int
	err   error
	calls int
}

func (e *fakeEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	v := make([]float32, e.dim)
	v[0] = 1
	return v, nil
}

func (e *fakeEncoder) Dimension() int    { return e.dim }
func (e *fakeEncoder) ModelName() string { return e.name }

func hit(rank int, sim float64, id, text string) entity.SearchHit {
	return entity.SearchHit{
		Rank:       rank,
		Similarity: sim,
		Metadata:   entity.VectorMetadata{SegmentID: id, TextPreview: text, FileName: id + ".pdf"},
	}
}

const longText = "反应釜在升温阶段必须缓慢加热，避免局部过热导致物料分解。"

func ptr(f float64) *float64 { return &f }

func TestEmbedQueryFallback(t *testing.T) {
	tests := []struct {
		name         string
		primary      *fakeEncoder
		usePrimary   bool
		wantStrategy string
	}{
		{"primary ok", &fakeEncoder{name: "remote", dim: 4}, true, "primary"},
		{"primary disabled by caller", &fakeEncoder{name: "remote", dim: 4}, false, "local"},
		{"primary error", &fakeEncoder{name: "remote", dim: 4, err: errors.New("timeout")}, true, "local"},
		{"primary dimension mismatch", &fakeEncoder{name: "remote", dim: 1536}, true, "local"},
		{"no primary", nil, true, "local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &fakeEncoder{name: "local", dim: 4}
			var primary QueryEncoder
			if tt.primary != nil {
				primary = tt.primary
			}
			r := NewRetriever(&fakeIndex{dim: 4}, local, primary, DefaultConfig())
			vec, strategy, err := r.EmbedQuery(context.Background(), "反应温度", tt.usePrimary, 4)
			if err != nil {
				t.Fatalf("EmbedQuery error: %v", err)
			}
			if strategy != tt.wantStrategy || len(vec) != 4 {
				t.Errorf("strategy = %s, dim = %d", strategy, len(vec))
			}
			if tt.primary != nil && tt.primary.dim != 4 && tt.primary.calls != 0 {
				t.Errorf("primary called %d times despite dimension mismatch", tt.primary.calls)
			}
		})
	}
}

// readyEncoder 带可用状态的编码器
type readyEncoder struct {
	fakeEncoder
	ready bool
}

func (e *readyEncoder) Ready() bool { return e.ready }

func TestStatusReflectsEncoderReadiness(t *testing.T) {
	tests := []struct {
		name        string
		local       QueryEncoder
		primary     QueryEncoder
		wantLocal   bool
		wantPrimary bool
		wantStatus  string
	}{
		{"both ready", &readyEncoder{fakeEncoder{name: "local", dim: 4}, true}, &readyEncoder{fakeEncoder{name: "remote", dim: 4}, true}, true, true, "healthy"},
		{"primary down", &readyEncoder{fakeEncoder{name: "local", dim: 4}, true}, &readyEncoder{fakeEncoder{name: "remote", dim: 4}, false}, true, false, "healthy"},
		{"local down", &readyEncoder{fakeEncoder{name: "local", dim: 4}, false}, nil, false, false, "degraded"},
		{"without readiness", &fakeEncoder{name: "local", dim: 4}, nil, true, false, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetriever(&fakeIndex{dim: 4}, tt.local, tt.primary, DefaultConfig())
			st := r.Status(context.Background())
			if st.LocalEmbeddingAvailable != tt.wantLocal || st.PrimaryAvailable != tt.wantPrimary {
				t.Errorf("local = %v, primary = %v", st.LocalEmbeddingAvailable, st.PrimaryAvailable)
			}
			if st.ServiceStatus != tt.wantStatus {
				t.Errorf("status = %s, want %s", st.ServiceStatus, tt.wantStatus)
			}
		})
	}
}

func TestEmbedQueryAllFail(t *testing.T) {
	local := &fakeEncoder{name: "local", dim: 4, err: errors.New("model not loaded")}
	r := NewRetriever(&fakeIndex{dim: 4}, local, nil, DefaultConfig())
	if _, _, err := r.EmbedQuery(context.Background(), "q", true, 4); !errors.Is(err, ErrQueryEmbedding) {
		t.Errorf("err = %v, want ErrQueryEmbedding", err)
	}
	if _, _, err := r.EmbedQuery(context.Background(), "  ", true, 4); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestRetrieveFromFile(t *testing.T) {
	idx := &fakeIndex{dim: 4, hits: map[string][]entity.SearchHit{
		"doc": {hit(1, 0.95, "a", longText), hit(2, 0.91, "b", longText), hit(3, 0.5, "c", longText)},
	}}
	r := NewRetriever(idx, &fakeEncoder{name: "local", dim: 4}, nil, DefaultConfig())
	ctx := context.Background()

	got, err := r.RetrieveFromFile(ctx, "温度", "doc", Options{TopK: 10, MinSimilarity: ptr(0.9)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	for _, res := range got {
		if res.Similarity < 0.9 {
			t.Errorf("similarity %f below threshold", res.Similarity)
		}
		if res.Query != "温度" || res.FileID != "doc" {
			t.Errorf("result missing query info: %+v", res)
		}
	}

	got, err = r.RetrieveFromFile(ctx, "温度", "missing", Options{})
	if err != nil || len(got) != 0 {
		t.Errorf("missing index = %v, %v", got, err)
	}
}

func TestRetrieveFromFileValidation(t *testing.T) {
	r := NewRetriever(&fakeIndex{dim: 4}, &fakeEncoder{name: "local", dim: 4}, nil, DefaultConfig())
	ctx := context.Background()
	tests := []struct {
		name   string
		query  string
		fileID string
		topK   int
		want   error
	}{
		{"empty query", " ", "doc", 5, ErrEmptyQuery},
		{"empty file", "q", "", 5, ErrEmptyFileID},
		{"negative top_k", "q", "doc", -1, ErrInvalidTopK},
		{"top_k too large", "q", "doc", 51, ErrInvalidTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.RetrieveFromFile(ctx, tt.query, tt.fileID, Options{TopK: tt.topK}); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRetrieveFromFileCorruptIndexSurfaces(t *testing.T) {
	idx := &fakeIndex{dim: 4,
		hits: map[string][]entity.SearchHit{"doc": nil},
		fail: map[string]error{"doc": vectorstore.ErrIndexCorrupt},
	}
	r := NewRetriever(idx, &fakeEncoder{name: "local", dim: 4}, nil, DefaultConfig())
	if _, err := r.RetrieveFromFile(context.Background(), "q", "doc", Options{}); !errors.Is(err, vectorstore.ErrIndexCorrupt) {
		t.Errorf("err = %v, want ErrIndexCorrupt", err)
	}
}

func TestRetrieveFromFileUsesIndexDimension(t *testing.T) {
	// 该文件索引是 1536 维，本地模型 4 维，远程模型 1536 维
	idx := &fakeIndex{dim: 4,
		hits:     map[string][]entity.SearchHit{"doc": {hit(1, 0.8, "a", longText)}},
		fileDims: map[string]int{"doc": 1536},
	}
	primary := &fakeEncoder{name: "remote", dim: 1536}
	r := NewRetriever(idx, &fakeEncoder{name: "local", dim: 4}, primary, DefaultConfig())
	if _, err := r.RetrieveFromFile(context.Background(), "q", "doc", Options{UsePrimary: true}); err != nil {
		t.Fatal(err)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d", primary.calls)
	}
}

func TestRetrieveFromMultipleFiles(t *testing.T) {
	idx := &fakeIndex{dim: 4,
		hits: map[string][]entity.SearchHit{
			"a": {hit(1, 0.7, "a1", longText)},
			"b": {hit(1, 0.6, "b1", longText)},
		},
		fail: map[string]error{"b": errors.New("disk error")},
	}
	local := &fakeEncoder{name: "local", dim: 4}
	r := NewRetriever(idx, local, nil, DefaultConfig())

	got, err := r.RetrieveFromMultipleFiles(context.Background(), "q", []string{"a", "b", "c"}, Options{TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if local.calls != 1 {
		t.Errorf("query embedded %d times, want 1", local.calls)
	}
	if len(got) != 3 || len(got["a"]) != 1 || len(got["b"]) != 0 || len(got["c"]) != 0 {
		t.Errorf("got = %+v", got)
	}
}

func TestRetrieveAllAvailableEmpty(t *testing.T) {
	r := NewRetriever(&fakeIndex{dim: 4, hits: map[string][]entity.SearchHit{}}, &fakeEncoder{name: "local", dim: 4}, nil, DefaultConfig())
	got, err := r.RetrieveAllAvailable(context.Background(), "q", Options{})
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestRetrieveAllAvailable(t *testing.T) {
	header := "=== 第 1 页 ===\n化工进展 ISSN 1000-6613"
	idx := &fakeIndex{dim: 4, hits: map[string][]entity.SearchHit{
		"a": {hit(1, 0.9, "a1", header), hit(2, 0.5, "a2", longText), hit(3, 0.4, "a3", longText)},
		"b": {hit(1, 0.8, "b1", "太短"), hit(2, 0.6, "b2", longText), hit(3, 0.01, "b3", longText)},
		"c": {hit(1, 0.7, "c1", longText), hit(2, 0.7, "c2", longText), hit(3, 0.3, "c3", longText)},
	}}
	r := NewRetriever(idx, &fakeEncoder{name: "local", dim: 4}, nil, DefaultConfig())

	got, err := r.RetrieveAllAvailable(context.Background(), "q", Options{TopK: 6})
	if err != nil {
		t.Fatal(err)
	}
	// 每个文件取 2 条：a1 a2 b1 b2 c1 c2，过滤 a1(页眉) b1(过短)
	var ids []string
	for i, res := range got {
		ids = append(ids, res.Metadata.SegmentID)
		if res.Rank != i+1 {
			t.Errorf("rank[%d] = %d", i, res.Rank)
		}
	}
	if want := "c1,c2,b2,a2"; strings.Join(ids, ",") != want {
		t.Errorf("ids = %s, want %s", strings.Join(ids, ","), want)
	}
}

func TestRetrieveAllAvailableTruncatesAndFloors(t *testing.T) {
	idx := &fakeIndex{dim: 4, hits: map[string][]entity.SearchHit{
		"a": {hit(1, 0.5, "a1", longText), hit(2, 0.015, "a2", longText), hit(3, 0.3, "a3", longText)},
	}}
	r := NewRetriever(idx, &fakeEncoder{name: "local", dim: 4}, nil, DefaultConfig())

	got, err := r.RetrieveAllAvailable(context.Background(), "q", Options{TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Metadata.SegmentID != "a1" || got[1].Metadata.SegmentID != "a3" {
		t.Errorf("got = %+v", got)
	}

	got, _ = r.RetrieveAllAvailable(context.Background(), "q", Options{TopK: 1})
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestFormatContext(t *testing.T) {
	results := []entity.RetrievalResult{
		{Similarity: 0.9, FileID: "f", Metadata: entity.VectorMetadata{SegmentID: "s1", TextPreview: "第一段内容", FileName: "a.pdf"}},
		{Similarity: 0.8, FileID: "f", Metadata: entity.VectorMetadata{SegmentID: "s2", Text: "第二段内容"}},
		{Similarity: 0.7, FileID: "f", Metadata: entity.VectorMetadata{TextPreview: "第三段内容"}},
	}
	ctx := context.Background()

	text, cited := FormatContext(ctx, results, 1000)
	if want := "1. 第一段内容\n\n2. 第二段内容\n\n3. 第三段内容"; text != want {
		t.Errorf("context = %q, want %q", text, want)
	}
	if len(cited) != 3 || cited[1].FileName != "未知文档" || cited[2].SegmentID != "段落3" || cited[0].Similarity != 0.9 {
		t.Errorf("cited = %+v", cited)
	}

	// "1. 第一段内容" 8 字符，加上分隔符和第二段共 18
	text, cited = FormatContext(ctx, results, 17)
	if text != "1. 第一段内容" || len(cited) != 1 {
		t.Errorf("limited context = %q, cited %d", text, len(cited))
	}
	text, cited = FormatContext(ctx, results, 18)
	if len(cited) != 2 || len([]rune(text)) != 18 {
		t.Errorf("limited context = %q, cited %d", text, len(cited))
	}

	text, cited = FormatContext(ctx, nil, 100)
	if text != NoContextText || len(cited) != 0 {
		t.Errorf("empty = %q, %v", text, cited)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.RetrievalConfig{DefaultTopK: 8, MaxTopK: 20, QualityFloor: 0.05, MaxContextLength: 2000})
	if cfg.DefaultTopK != 8 || cfg.MaxTopK != 20 || cfg.Quality.Floor != 0.05 || cfg.MaxContextLength != 2000 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Quality.MinTextLength != 20 || len(cfg.Quality.BoilerplateMarkers) != 2 {
		t.Errorf("quality defaults not applied: %+v", cfg.Quality)
	}
}

// 使用真实的向量库和特征哈希模型
func TestRetrieverEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc := embedding.NewService(embedding.NewHashingProvider(256))
	store, err := vectorstore.NewStore(&config.VectorIndexConfig{Dir: t.TempDir()}, svc.Dimension())
	if err != nil {
		t.Fatal(err)
	}

	texts := []string{
		"精馏塔的回流比直接影响产品纯度和能耗，操作中需要根据塔顶温度调节。",
		"离心泵启动前必须灌泵排气，防止汽蚀损坏叶轮，同时检查密封状况。",
		"催化剂失活的主要原因包括积碳、烧结和中毒，需要定期再生或更换。",
	}
	segs := make([]*entity.Segment, len(texts))
	for i, txt := range texts {
		segs[i] = &entity.Segment{ID: fmt.Sprintf("doc_%d", i+1), FileID: "doc", Order: i + 1, Text: txt, CharacterCount: len([]rune(txt))}
	}
	vecs, metas, err := svc.EncodeSegments(ctx, segs, "manual.txt", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddVectors(ctx, "doc", vecs, metas); err != nil {
		t.Fatal(err)
	}

	r := NewRetriever(store, svc, nil, DefaultConfig())
	got, err := r.RetrieveFromFile(ctx, "离心泵汽蚀", "doc", Options{TopK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Metadata.SegmentID != "doc_2" {
		t.Errorf("got = %+v", got)
	}

	all, err := r.RetrieveAllAvailable(ctx, "催化剂积碳", Options{TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) == 0 || all[0].Metadata.SegmentID != "doc_3" {
		t.Errorf("all = %+v", all)
	}

	st := r.Status(ctx)
	if st.TotalIndices != 1 || st.EmbeddingModel != embedding.HashingModelName || !st.LocalEmbeddingAvailable {
		t.Errorf("status = %+v", st)
	}
}
