package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"chem-rag-api/internal/application/retrieval"
	"chem-rag-api/internal/config"
	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/infrastructure/embedding"
	"chem-rag-api/internal/infrastructure/vectorstore"
)

func newTestService(t *testing.T, m *fakeChatModel) (*Service, *vectorstore.Store) {
	t.Helper()
	ctx := context.Background()
	svc := embedding.NewService(embedding.NewHashingProvider(256))
	store, err := vectorstore.NewStore(&config.VectorIndexConfig{Dir: t.TempDir()}, svc.Dimension())
	if err != nil {
		t.Fatal(err)
	}

	docs := map[string][]string{
		"pump": {
			"离心泵启动前必须灌泵排气，防止汽蚀损坏叶轮，同时检查机械密封的状况。",
			"离心泵的流量调节通常通过出口阀门开度实现，避免长时间关闭出口阀运行。",
		},
		"column": {
			"精馏塔的回流比直接影响产品纯度和能耗，操作中需要根据塔顶温度调节。",
		},
	}
	for fileID, texts := range docs {
		segs := make([]*entity.Segment, len(texts))
		for i, txt := range texts {
			segs[i] = &entity.Segment{ID: fmt.Sprintf("%s_%d", fileID, i+1), FileID: fileID, Order: i + 1, Text: txt}
		}
		vecs, metas, err := svc.EncodeSegments(ctx, segs, fileID+".txt", 0)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.AddVectors(ctx, fileID, vecs, metas); err != nil {
			t.Fatal(err)
		}
	}

	r := retrieval.NewRetriever(store, svc, nil, retrieval.DefaultConfig())
	g := NewGenerator(fakeFactory{m: m}, testConfig())
	return NewService(r, g, store, true), store
}

func TestAskWithFileIDs(t *testing.T) {
	m := &fakeChatModel{reply: "启动前需要灌泵排气，防止汽蚀。"}
	s, _ := newTestService(t, m)

	res, err := s.Ask(context.Background(), AskRequest{Question: "离心泵汽蚀", FileIDs: []string{"pump"}, TopK: 2})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if res.ResponseType != ResponseTypeRAG || !res.ContextUsed {
		t.Errorf("result = %+v", res)
	}
	if res.Retrieval.TotalSegments == 0 || res.Retrieval.UsedSegments != len(res.Retrieval.CitedSegments) {
		t.Errorf("retrieval = %+v", res.Retrieval)
	}
	for _, c := range res.Retrieval.CitedSegments {
		if c.FileID != "pump" {
			t.Errorf("cited segment from %s, want pump", c.FileID)
		}
	}
	if !strings.Contains(m.last[1].Content, "离心泵") {
		t.Error("prompt should carry retrieved context")
	}
	if res.Generation.Temperature != float64(float32(0.1)) || res.Generation.MaxTokens != 1000 {
		t.Errorf("generation = %+v", res.Generation)
	}
	if !res.Quality.ContextBased {
		t.Errorf("quality = %+v", res.Quality)
	}
}

func TestAskAllAvailable(t *testing.T) {
	m := &fakeChatModel{reply: "回流比影响纯度。"}
	s, _ := newTestService(t, m)

	res, err := s.Ask(context.Background(), AskRequest{Question: "精馏塔回流比"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(res.Retrieval.CitedSegments) == 0 || res.Retrieval.CitedSegments[0].FileID != "column" {
		t.Errorf("cited = %+v", res.Retrieval.CitedSegments)
	}
}

func TestAskWithoutContextFallsBackToDirect(t *testing.T) {
	m := &fakeChatModel{reply: "answer"}
	s, _ := newTestService(t, m)

	high := 2.0
	res, err := s.Ask(context.Background(), AskRequest{Question: "离心泵", FileIDs: []string{"pump"}, MinSimilarity: &high})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if res.ResponseType != ResponseTypeDirect || res.ContextUsed || res.Retrieval.UsedSegments != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.Retrieval.MinSimilarity != 2.0 {
		t.Errorf("MinSimilarity = %v", res.Retrieval.MinSimilarity)
	}
}

func TestAskValidation(t *testing.T) {
	s, _ := newTestService(t, &fakeChatModel{reply: "x"})
	tests := []struct {
		name string
		req  AskRequest
		want error
	}{
		{"empty question", AskRequest{Question: "  "}, ErrEmptyQuestion},
		{"top_k too large", AskRequest{Question: "q", TopK: 21}, ErrInvalidTopK},
		{"negative top_k", AskRequest{Question: "q", TopK: -1}, ErrInvalidTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Ask(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Ask() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAskGenerationFailure(t *testing.T) {
	s, _ := newTestService(t, &fakeChatModel{err: errors.New("upstream 500")})
	if _, err := s.Ask(context.Background(), AskRequest{Question: "离心泵"}); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Ask() error = %v, want ErrGenerationFailed", err)
	}
}

func TestAskStream(t *testing.T) {
	s, _ := newTestService(t, &fakeChatModel{chunks: []string{"灌泵", "排气"}})

	var types []string
	err := s.AskStream(context.Background(), AskRequest{Question: "离心泵启动"}, func(ev StreamEvent) error {
		types = append(types, ev.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("AskStream() error = %v", err)
	}
	if got := strings.Join(types, ","); got != "start,content,content,end" {
		t.Errorf("events = %s", got)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestService(t, &fakeChatModel{})
	h := s.Health(context.Background())
	if h.ServiceStatus != "healthy" || h.TotalAvailableFiles != 2 {
		t.Errorf("health = %+v", h)
	}

	s.llmAvailable = false
	h = s.Health(context.Background())
	if h.ServiceStatus != "degraded" || h.GeneratorStatus.ServiceStatus != "limited" {
		t.Errorf("health without llm = %+v", h)
	}
}
