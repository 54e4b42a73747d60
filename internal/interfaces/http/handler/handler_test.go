package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"chem-rag-api/internal/application/indexing"
	"chem-rag-api/internal/application/qa"
	"chem-rag-api/internal/application/retrieval"
	"chem-rag-api/internal/application/segment"
	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/domain/repository"
	"chem-rag-api/internal/infrastructure/embedding"
	"chem-rag-api/internal/infrastructure/vectorstore"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// streamRecorder 为 c.Stream 补齐 CloseNotify
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

type chatModel struct {
	reply  string
	chunks []string
}

func (m *chatModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return &schema.Message{Role: schema.Assistant, Content: m.reply}, nil
}

func (m *chatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msgs := make([]*schema.Message, 0, len(m.chunks))
	for _, c := range m.chunks {
		msgs = append(msgs, &schema.Message{Role: schema.Assistant, Content: c})
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type chatFactory struct{ m *chatModel }

func (f chatFactory) Get(context.Context, string) (model.BaseChatModel, error) { return f.m, nil }

// memSegments 只实现处理器测试用到的方法
type memSegments struct {
	repository.SegmentRepository
	segs map[string]*entity.Segment
}

func (m *memSegments) GetByID(_ context.Context, id string) (*entity.Segment, error) {
	return m.segs[id], nil
}

func (m *memSegments) GetByFileID(_ context.Context, fileID string) ([]*entity.Segment, error) {
	var out []*entity.Segment
	for _, s := range m.segs {
		if s.FileID == fileID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSegments) UpdateTags(_ context.Context, id string, tags []string) (bool, error) {
	s, ok := m.segs[id]
	if ok {
		s.Tags = tags
	}
	return ok, nil
}

type fixture struct {
	engine *gin.Engine
	store  *vectorstore.Store
	segs   *memSegments
}

func newFixture(t *testing.T, m *chatModel) *fixture {
	t.Helper()
	ctx := context.Background()
	emb := embedding.NewService(embedding.NewHashingProvider(128))
	store, err := vectorstore.NewStore(&config.VectorIndexConfig{Dir: t.TempDir()}, emb.Dimension())
	if err != nil {
		t.Fatal(err)
	}

	texts := []string{
		"离心泵启动前必须灌泵排气，防止汽蚀损坏叶轮。",
		"离心泵的流量调节通常通过出口阀门开度实现。",
	}
	segs := &memSegments{segs: map[string]*entity.Segment{}}
	stored := make([]*entity.Segment, len(texts))
	for i, txt := range texts {
		s := &entity.Segment{ID: fmt.Sprintf("pump_%d", i+1), FileID: "pump", Order: i + 1, Text: txt}
		stored[i] = s
		segs.segs[s.ID] = s
	}
	vecs, metas, err := emb.EncodeSegments(ctx, stored, "pump.txt", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddVectors(ctx, "pump", vecs, metas); err != nil {
		t.Fatal(err)
	}

	retriever := retrieval.NewRetriever(store, emb, nil, retrieval.DefaultConfig())
	idx := indexing.NewService(indexing.Deps{Segments: segs, Encoder: emb, Store: store})
	gen := qa.NewGenerator(chatFactory{m: m}, qa.GeneratorConfig{Provider: "openai", Model: "gpt-test", Temperature: 0.1, MaxTokens: 500})
	qaSvc := qa.NewService(retriever, gen, store, true)

	emh := NewEmbeddingHandler(idx, retriever)
	sh := NewSegmentHandler(idx, segment.NewService(segs, segment.DefaultConfig()))
	qh := NewQAHandler(qaSvc)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/embeddings/search/:file_id", emh.Search)
	api.GET("/embeddings/info/:file_id", emh.Info)
	api.GET("/embeddings/list", emh.List)
	api.POST("/segments/tag", sh.UpdateTags)
	api.GET("/segments/file/:file_id", sh.ListByFile)
	api.GET("/segments/recommend/:segment_id", sh.Recommend)
	api.GET("/segments/search", sh.Search)
	api.POST("/qa/rag", qh.Ask)
	api.POST("/qa/rag/stream", qh.AskStream)
	api.GET("/qa/available-files", qh.AvailableFiles)

	return &fixture{engine: r, store: store, segs: segs}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode string `json:"error_code"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
	return env
}

func TestEmbeddingSearch(t *testing.T) {
	f := newFixture(t, &chatModel{})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"hits", "/api/embeddings/search/pump", `{"query":"离心泵汽蚀","top_k":2,"min_score":-1}`, http.StatusOK},
		{"missing index", "/api/embeddings/search/nope", `{"query":"离心泵"}`, http.StatusNotFound},
		{"missing query", "/api/embeddings/search/pump", `{}`, http.StatusBadRequest},
		{"bad json", "/api/embeddings/search/pump", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.status, w.Body.String())
			}
		})
	}

	w := f.do(http.MethodPost, "/api/embeddings/search/pump", `{"query":"离心泵汽蚀","top_k":2,"min_score":-1}`)
	var data struct {
		FileID       string `json:"file_id"`
		TotalResults int    `json:"total_results"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.FileID != "pump" || data.TotalResults != 2 {
		t.Errorf("data = %+v", data)
	}
}

func TestEmbeddingInfoAndList(t *testing.T) {
	f := newFixture(t, &chatModel{})

	if w := f.do(http.MethodGet, "/api/embeddings/info/pump", ""); w.Code != http.StatusOK {
		t.Errorf("info status = %d", w.Code)
	}
	w := f.do(http.MethodGet, "/api/embeddings/info/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing info status = %d", w.Code)
	}
	if env := decode(t, w); env.Error == nil || env.Error.ErrorCode != "3003" {
		t.Errorf("error = %+v", env.Error)
	}

	var list struct {
		TotalIndices int `json:"total_indices"`
	}
	if err := json.Unmarshal(decode(t, f.do(http.MethodGet, "/api/embeddings/list", "")).Data, &list); err != nil {
		t.Fatal(err)
	}
	if list.TotalIndices != 1 {
		t.Errorf("total_indices = %d, want 1", list.TotalIndices)
	}
}

func TestSegmentHandlers(t *testing.T) {
	f := newFixture(t, &chatModel{})

	t.Run("update tags", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/segments/tag", `{"segment_id":"pump_1","tags":["安全"," 安全 ","设备"]}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if got := strings.Join(f.segs.segs["pump_1"].Tags, ","); got != "安全,设备" {
			t.Errorf("tags = %s", got)
		}
	})

	t.Run("unknown segment", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/segments/tag", `{"segment_id":"gone","tags":["x"]}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("missing segment id", func(t *testing.T) {
		if w := f.do(http.MethodPost, "/api/segments/tag", `{"tags":["x"]}`); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("list by file", func(t *testing.T) {
		var data struct {
			SegmentCount int `json:"segment_count"`
		}
		w := f.do(http.MethodGet, "/api/segments/file/pump", "")
		if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
			t.Fatal(err)
		}
		if data.SegmentCount != 2 {
			t.Errorf("segment_count = %d", data.SegmentCount)
		}
	})

	t.Run("recommend", func(t *testing.T) {
		if w := f.do(http.MethodGet, "/api/segments/recommend/pump_1", ""); w.Code != http.StatusOK {
			t.Errorf("status = %d", w.Code)
		}
		if w := f.do(http.MethodGet, "/api/segments/recommend/none", ""); w.Code != http.StatusNotFound {
			t.Errorf("missing status = %d", w.Code)
		}
	})

	t.Run("blank keyword", func(t *testing.T) {
		if w := f.do(http.MethodGet, "/api/segments/search?keyword=", ""); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestQAAsk(t *testing.T) {
	f := newFixture(t, &chatModel{reply: "启动前需要灌泵排气。"})

	w := f.do(http.MethodPost, "/api/qa/rag", `{"question":"离心泵启动前要做什么","file_ids":["pump"],"top_k":2,"min_similarity":-1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var data struct {
		Answer       string `json:"answer"`
		ResponseType string `json:"response_type"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Answer == "" || data.ResponseType != qa.ResponseTypeRAG {
		t.Errorf("data = %+v", data)
	}

	if w := f.do(http.MethodPost, "/api/qa/rag", `{"question":"q","top_k":50}`); w.Code != http.StatusBadRequest {
		t.Errorf("top_k=50 status = %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/qa/rag", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d", w.Code)
	}
}

func TestQAAskStream(t *testing.T) {
	f := newFixture(t, &chatModel{chunks: []string{"灌泵", "排气"}})

	req := httptest.NewRequest(http.MethodPost, "/api/qa/rag/stream",
		bytes.NewBufferString(`{"question":"离心泵启动","file_ids":["pump"],"min_similarity":-1}`))
	req.Header.Set("Content-Type", "application/json")
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	f.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, ev := range []string{"event:start", "event:content", "event:end"} {
		if !strings.Contains(body, ev) {
			t.Errorf("stream missing %s:\n%s", ev, body)
		}
	}
	if strings.Index(body, "event:start") > strings.Index(body, "event:end") {
		t.Error("end event before start")
	}
}

func TestQAAskStreamValidationIsJSON(t *testing.T) {
	f := newFixture(t, &chatModel{})

	req := httptest.NewRequest(http.MethodPost, "/api/qa/rag/stream", bytes.NewBufferString(`{"question":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	f.engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if env := decode(t, w.ResponseRecorder); env.Code != http.StatusBadRequest {
		t.Errorf("envelope = %+v", env)
	}
}

func TestQAAvailableFiles(t *testing.T) {
	f := newFixture(t, &chatModel{})

	var data dtoAvailable
	if err := json.Unmarshal(decode(t, f.do(http.MethodGet, "/api/qa/available-files", "")).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.TotalFiles != 1 || data.Files[0].FileID != "pump" || data.Files[0].VectorCount != 2 {
		t.Errorf("data = %+v", data)
	}
}

type dtoAvailable struct {
	TotalFiles int `json:"total_files"`
	Files      []struct {
		FileID      string `json:"file_id"`
		VectorCount int    `json:"vector_count"`
	} `json:"files"`
}
