package content

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/cache"
	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/llm"
)

type scriptedGenerator struct {
	calls   atomic.Int32
	prompts []string
	mu      sync.Mutex
	replies []reply
}

type reply struct {
	json string
	err  error
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (*llm.Result, error) {
	n := int(g.calls.Add(1)) - 1
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	r := g.replies[len(g.replies)-1]
	if n < len(g.replies) {
		r = g.replies[n]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Result{Provider: "groq", JSON: json.RawMessage(r.json)}, nil
}

type memStore struct {
	mu   sync.Mutex
	recs []*domain.ContentRecord
	err  error
}

func (m *memStore) SaveContent(_ context.Context, rec *domain.ContentRecord) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memStore) GetContent(_ context.Context, id uuid.UUID) (*domain.ContentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.ErrContentNotFound
}

func (m *memStore) ListContent(_ context.Context, kind domain.ContentKind, topic string, _ int) ([]*domain.ContentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ContentRecord
	for _, r := range m.recs {
		if r.Kind == kind && (topic == "" || r.Topic == topic) {
			out = append(out, r)
		}
	}
	return out, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) Record(_ context.Context, eventType, _ string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, eventType)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		CacheTTL:          time.Hour,
		MaxAttempts:       3,
		RetryInitialDelay: time.Millisecond,
		RetryMaxDelay:     5 * time.Millisecond,
	}
}

const validQuiz = `{"title":"Arrays","questions":[{"question":"Index of first element?","options":["0","1"],"answer_index":0}]}`

const validRoadmap = `{"title":"Go","description":"d","level":"beginner","steps":[{"title":"Basics","topics":["syntax"],"estimated_days":3}]}`

const validProblem = `{"title":"Sum","statement":"Add two numbers","test_cases":[{"input":"1 2","expected_output":"3"}]}`

func TestGenerateQuiz(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{json: validQuiz}}}
	store := &memStore{}
	events := &eventLog{}
	svc := NewService(gen, testConfig(), WithStore(store), WithEvents(events), WithLogger(quietLogger()))

	doc, err := svc.GenerateQuiz(context.Background(), QuizRequest{Topic: "  Arrays "})
	if err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}
	if doc.Body.Topic != "arrays" {
		t.Errorf("Topic = %q; want arrays (filled from request)", doc.Body.Topic)
	}
	if doc.Record.Provider != "groq" || doc.Record.Kind != domain.ContentQuiz {
		t.Errorf("Record = %+v", doc.Record)
	}
	if doc.Record.CacheKey != "quiz:arrays:medium:5" {
		t.Errorf("CacheKey = %q", doc.Record.CacheKey)
	}
	if len(store.recs) != 1 {
		t.Errorf("stored %d records; want 1", len(store.recs))
	}
	if len(events.events) != 1 || events.events[0] != EventContentGenerated {
		t.Errorf("events = %v", events.events)
	}
	if !strings.Contains(gen.prompts[0], "exactly 5 questions") {
		t.Errorf("prompt missing question count: %s", gen.prompts[0])
	}
}

func TestGenerate_RetriesMalformed(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{
		{err: llm.ErrMalformedResponse},
		{err: llm.ErrRateLimited},
		{json: validRoadmap},
	}}
	svc := NewService(gen, testConfig(), WithLogger(quietLogger()))

	doc, err := svc.GenerateRoadmap(context.Background(), RoadmapRequest{Topic: "go"})
	if err != nil {
		t.Fatalf("GenerateRoadmap() error = %v", err)
	}
	if gen.calls.Load() != 3 {
		t.Errorf("calls = %d; want 3", gen.calls.Load())
	}
	if doc.Body.Title != "Go" {
		t.Errorf("Title = %q", doc.Body.Title)
	}
}

func TestGenerate_GivesUpAfterMaxAttempts(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{err: llm.ErrMalformedResponse}}}
	svc := NewService(gen, testConfig(), WithLogger(quietLogger()))

	_, err := svc.GenerateProblem(context.Background(), ProblemRequest{Topic: "dp"})
	if !errors.Is(err, llm.ErrMalformedResponse) {
		t.Fatalf("error = %v; want ErrMalformedResponse", err)
	}
	if gen.calls.Load() != 3 {
		t.Errorf("calls = %d; want 3", gen.calls.Load())
	}
}

func TestGenerate_DoesNotRetryExhaustion(t *testing.T) {
	hybrid := &llm.HybridError{
		PrimaryName: "groq", Primary: errors.New("boom"),
		FallbackName: "gemini", Fallback: llm.ErrProviderExhausted,
	}
	gen := &scriptedGenerator{replies: []reply{{err: hybrid}}}
	svc := NewService(gen, testConfig(), WithLogger(quietLogger()))

	_, err := svc.GenerateQuiz(context.Background(), QuizRequest{Topic: "graphs"})
	var he *llm.HybridError
	if !errors.As(err, &he) {
		t.Fatalf("error = %v; want HybridError", err)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("calls = %d; want 1", gen.calls.Load())
	}
}

func TestGenerate_InvalidContent(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"answer out of range", `{"title":"x","questions":[{"question":"q","options":["a","b"],"answer_index":5}]}`},
		{"no questions", `{"title":"x","questions":[]}`},
		{"wrong shape", `{"title":"x","questions":"none"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{replies: []reply{{json: tt.json}}}
			store := &memStore{}
			svc := NewService(gen, testConfig(), WithStore(store), WithLogger(quietLogger()))

			_, err := svc.GenerateQuiz(context.Background(), QuizRequest{Topic: "arrays"})
			if !errors.Is(err, domain.ErrInvalidContent) {
				t.Fatalf("error = %v; want ErrInvalidContent", err)
			}
			if !IsInvalid(err) {
				t.Error("IsInvalid() = false")
			}
			if len(store.recs) != 0 {
				t.Error("invalid content was stored")
			}
		})
	}
}

func TestGenerate_CacheHit(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{json: validProblem}}}
	svc := NewService(gen, testConfig(), WithCache(cache.NewMemory()), WithLogger(quietLogger()))
	ctx := context.Background()

	first, err := svc.GenerateProblem(ctx, ProblemRequest{Topic: "Math", Difficulty: "EASY"})
	if err != nil {
		t.Fatalf("first GenerateProblem() error = %v", err)
	}
	if first.Cached {
		t.Error("first call reported cached")
	}

	second, err := svc.GenerateProblem(ctx, ProblemRequest{Topic: "math"})
	if err != nil {
		t.Fatalf("second GenerateProblem() error = %v", err)
	}
	if !second.Cached {
		t.Error("second call not served from cache")
	}
	if second.Record.ID != first.Record.ID {
		t.Errorf("cached id = %s; want %s", second.Record.ID, first.Record.ID)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("calls = %d; want 1", gen.calls.Load())
	}
}

func TestGenerate_CorruptCacheEntryRegenerates(t *testing.T) {
	c := cache.NewMemory()
	_ = c.Set(context.Background(), "roadmap:go:beginner", []byte("not json"), time.Hour)

	gen := &scriptedGenerator{replies: []reply{{json: validRoadmap}}}
	svc := NewService(gen, testConfig(), WithCache(c), WithLogger(quietLogger()))

	doc, err := svc.GenerateRoadmap(context.Background(), RoadmapRequest{Topic: "go"})
	if err != nil {
		t.Fatalf("GenerateRoadmap() error = %v", err)
	}
	if doc.Cached {
		t.Error("corrupt entry served as cached")
	}
	if gen.calls.Load() != 1 {
		t.Errorf("calls = %d; want 1", gen.calls.Load())
	}
}

func TestGenerate_StoreError(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{json: validRoadmap}}}
	svc := NewService(gen, testConfig(), WithStore(&memStore{err: errors.New("disk full")}), WithLogger(quietLogger()))

	if _, err := svc.GenerateRoadmap(context.Background(), RoadmapRequest{Topic: "go"}); err == nil {
		t.Fatal("GenerateRoadmap() error = nil; want store error")
	}
}

func TestRequestValidation(t *testing.T) {
	svc := NewService(&scriptedGenerator{replies: []reply{{json: validQuiz}}}, testConfig(), WithLogger(quietLogger()))
	ctx := context.Background()

	if _, err := svc.GenerateRoadmap(ctx, RoadmapRequest{Topic: " "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty topic error = %v; want ErrInvalidInput", err)
	}
	if _, err := svc.GenerateRoadmap(ctx, RoadmapRequest{Topic: "go", Level: "wizard"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad level error = %v; want ErrInvalidInput", err)
	}
	if _, err := svc.GenerateProblem(ctx, ProblemRequest{Topic: "go", Difficulty: "impossible"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad difficulty error = %v; want ErrInvalidInput", err)
	}
}

func TestQuizRequest_CountBounds(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 5},
		{-3, 5},
		{7, 7},
		{50, 20},
	}
	for _, tt := range tests {
		r := QuizRequest{Topic: "x", Count: tt.in}
		if err := r.normalize(); err != nil {
			t.Fatalf("normalize() error = %v", err)
		}
		if r.Count != tt.want {
			t.Errorf("Count(%d) = %d; want %d", tt.in, r.Count, tt.want)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	if got := normalizeText("  Binary   Search\tTrees "); got != "binary search trees" {
		t.Errorf("normalizeText() = %q", got)
	}
}

func TestGetAndList(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{json: validQuiz}}}
	store := &memStore{}
	svc := NewService(gen, testConfig(), WithStore(store), WithLogger(quietLogger()))
	ctx := context.Background()

	doc, err := svc.GenerateQuiz(ctx, QuizRequest{Topic: "arrays"})
	if err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}

	got, err := svc.Get(ctx, doc.Record.ID)
	if err != nil || got.ID != doc.Record.ID {
		t.Errorf("Get() = %v, %v", got, err)
	}

	list, err := svc.List(ctx, domain.ContentQuiz, "ARRAYS", 10)
	if err != nil || len(list) != 1 {
		t.Errorf("List() = %d items, %v; want 1", len(list), err)
	}
}
