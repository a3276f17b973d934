package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/analytics"
	"github.com/felixgeelhaar/skillforge/internal/cache"
	"github.com/felixgeelhaar/skillforge/internal/content"
	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/grading"
	"github.com/felixgeelhaar/skillforge/internal/judge"
	"github.com/felixgeelhaar/skillforge/internal/llm"
	"github.com/felixgeelhaar/skillforge/internal/queue"
	"github.com/felixgeelhaar/skillforge/internal/storage"
)

const testQuiz = `{"title":"Arrays","questions":[{"question":"Index of first element?","options":["0","1"],"answer_index":0}]}`

type fakeGenerator struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, _ string) (*llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Result{Provider: "gemini", JSON: json.RawMessage(g.body)}, nil
}

// echoExecutor accepts a case when the submitted stdin matches want
type echoExecutor struct {
	err error
}

func (e *echoExecutor) Execute(_ context.Context, sub judge.Submission) (*judge.Verdict, error) {
	if e.err != nil {
		return nil, e.err
	}
	if sub.Stdin == sub.ExpectedOutput {
		return &judge.Verdict{Status: judge.StatusAccepted, Stdout: sub.Stdin}, nil
	}
	return &judge.Verdict{Status: "Wrong Answer", Stdout: "nope"}, nil
}

type fakeQueue struct {
	jobs []*queue.SubmissionJob
	err  error
}

func (q *fakeQueue) PublishSubmission(_ context.Context, job *queue.SubmissionJob) error {
	if q.err != nil {
		return q.err
	}
	if job.Request.SubmissionID == uuid.Nil {
		job.Request.SubmissionID = job.ID
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type testEnv struct {
	server   *Server
	gen      *fakeGenerator
	executor *echoExecutor
	stores   *storage.Stores
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer creates a server over a temporary SQLite database
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	stores, err := storage.Open(ctx, storage.Config{
		Driver:     storage.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}, quietLogger())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { stores.Close() })

	gen := &fakeGenerator{body: testQuiz}
	exec := &echoExecutor{}
	cfg := content.Config{
		CacheTTL:          time.Hour,
		MaxAttempts:       1,
		RetryInitialDelay: time.Millisecond,
		RetryMaxDelay:     time.Millisecond,
	}

	reg := llm.NewRegistry()
	svc := &Services{
		Content: content.NewService(gen, cfg,
			content.WithCache(cache.NewMemory()),
			content.WithStore(stores.Content),
			content.WithEvents(stores.Events),
			content.WithLogger(quietLogger()),
		),
		Grader:        grading.New(exec, stores.Submissions, grading.WithLogger(quietLogger())),
		Analytics:     analytics.NewService(stores.Progress, stores.Submissions, stores.Events),
		Submissions:   stores.Submissions,
		Progress:      stores.Progress,
		Events:        stores.Events,
		Providers:     reg,
		Mode:          llm.ModeGemini,
		JudgeBackend:  "judge0",
		StorageDriver: stores.Driver,
	}

	server, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", Services: svc, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	return &testEnv{server: server, gen: gen, executor: exec, stores: stores}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func submission(user, question, code string) grading.SubmissionRequest {
	return grading.SubmissionRequest{
		UserID:     user,
		QuestionID: question,
		Topic:      "arrays",
		Language:   "python",
		Code:       code,
		TestCases: []domain.TestCase{
			{Input: "1", ExpectedOutput: "1"},
			{Input: "2", ExpectedOutput: "2"},
		},
	}
}

func TestNewServer_RequiresServices(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("expected error without services")
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if w.Header().Get(CorrelationIDHeader) == "" {
		t.Error("missing correlation id header")
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/v1/status", nil)
	resp := decode[map[string]any](t, w)
	if resp["mode"] != "gemini" {
		t.Errorf("mode = %v", resp["mode"])
	}
	if resp["storage"] != "sqlite" {
		t.Errorf("storage = %v", resp["storage"])
	}
	if resp["async_grading"] != false {
		t.Errorf("async_grading = %v, want false", resp["async_grading"])
	}
}

func TestGenerateQuiz(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/v1/generate/quiz", map[string]any{"topic": "Arrays", "count": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	doc := decode[content.Document[domain.Quiz]](t, w)
	if doc.Body == nil || len(doc.Body.Questions) != 1 {
		t.Fatalf("body = %+v", doc.Body)
	}
	if doc.Record.Kind != domain.ContentQuiz {
		t.Errorf("kind = %q", doc.Record.Kind)
	}

	// stored and listable
	w = env.do(t, http.MethodGet, "/v1/content/"+doc.Record.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Errorf("get content status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/v1/content?kind=quiz", nil)
	list := decode[map[string][]domain.ContentRecord](t, w)
	if len(list["items"]) != 1 {
		t.Errorf("items = %d, want 1", len(list["items"]))
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    any
		genErr  error
		genBody string
		want    int
	}{
		{"unknown kind", "/v1/generate/essay", map[string]any{"topic": "go"}, nil, testQuiz, http.StatusBadRequest},
		{"missing topic", "/v1/generate/quiz", map[string]any{}, nil, testQuiz, http.StatusBadRequest},
		{"invalid json body", "/v1/generate/quiz", "not-an-object", nil, testQuiz, http.StatusBadRequest},
		{"not configured", "/v1/generate/quiz", map[string]any{"topic": "go"}, llm.ErrNotConfigured, "", http.StatusServiceUnavailable},
		{"exhausted", "/v1/generate/quiz", map[string]any{"topic": "go"}, llm.ErrProviderExhausted, "", http.StatusBadGateway},
		{"hybrid", "/v1/generate/quiz", map[string]any{"topic": "go"},
			&llm.HybridError{PrimaryName: "groq", Primary: errors.New("a"), FallbackName: "gemini", Fallback: errors.New("b")},
			"", http.StatusBadGateway},
		{"unusable document", "/v1/generate/quiz", map[string]any{"topic": "go"}, nil, `{"questions":[]}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)
			env.gen.err = tt.genErr
			env.gen.body = tt.genBody

			w := env.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestGenerate_HybridFailureKeepsBothMessages(t *testing.T) {
	env := setupTestServer(t)
	env.gen.err = &llm.HybridError{
		PrimaryName:  "groq",
		Primary:      errors.New("invalid api key XYZ"),
		FallbackName: "gemini",
		Fallback:     errors.New("quota exceeded ABC"),
	}

	w := env.do(t, http.MethodPost, "/v1/generate/quiz", map[string]any{"topic": "go"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	body := decode[errorBody](t, w)
	for _, msg := range []string{"invalid api key XYZ", "quota exceeded ABC"} {
		if !strings.Contains(body.Details, msg) {
			t.Errorf("details %q missing %q", body.Details, msg)
		}
	}
}

func TestJSONError_Details(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantDetails bool
	}{
		{"bad request", fmt.Errorf("%w: topic is required", domain.ErrInvalidInput), http.StatusBadRequest, true},
		{"judge failed", fmt.Errorf("judge0: %w: status 500", judge.ErrJudgeFailed), http.StatusBadGateway, true},
		{"judge unavailable", judge.ErrJudgeUnavailable, http.StatusServiceUnavailable, true},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
			env.server.jsonError(w, r, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decode[errorBody](t, w)
			if !tt.wantDetails {
				if body.Details != "" {
					t.Errorf("details = %q, want none", body.Details)
				}
				return
			}
			if body.Details != tt.err.Error() {
				t.Errorf("details = %q, want %q", body.Details, tt.err.Error())
			}
		})
	}
}

func TestSubmit_Sync(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/v1/submissions", submission("u1", "q1", "print(input())"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	out := decode[grading.Outcome](t, w)
	if !out.Applied || out.Result.Verdict != domain.VerdictAccepted {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Progress.Solved != 1 || out.Progress.Attempts != 1 {
		t.Errorf("progress = %+v", out.Progress)
	}

	// stored record is retrievable
	w = env.do(t, http.MethodGet, "/v1/submissions/"+out.Result.SubmissionID.String(), nil)
	if w.Code != http.StatusOK {
		t.Errorf("get submission status = %d", w.Code)
	}

	// event recorded
	counts, err := env.stores.Events.CountByType(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if counts[EventSubmissionGraded] != 1 {
		t.Errorf("submission_graded events = %d, want 1", counts[EventSubmissionGraded])
	}
}

func TestSubmit_ResubmitSameIDIsIdempotent(t *testing.T) {
	env := setupTestServer(t)

	req := submission("u1", "q1", "print(input())")
	req.SubmissionID = uuid.New()

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/v1/submissions", req)
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d", i, w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/v1/progress/u1/arrays", nil)
	p := decode[domain.ProgressCounter](t, w)
	if p.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", p.Attempts)
	}
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*grading.SubmissionRequest)
		execErr error
		want    int
	}{
		{"missing user", func(r *grading.SubmissionRequest) { r.UserID = "" }, nil, http.StatusBadRequest},
		{"empty code", func(r *grading.SubmissionRequest) { r.Code = "  " }, nil, http.StatusBadRequest},
		{"no test cases", func(r *grading.SubmissionRequest) { r.TestCases = nil }, nil, http.StatusBadRequest},
		{"unsupported language", func(r *grading.SubmissionRequest) { r.Language = "cobol" }, nil, http.StatusBadRequest},
		{"judge rate limited", func(*grading.SubmissionRequest) {}, judge.ErrJudgeUnavailable, http.StatusServiceUnavailable},
		{"judge failed", func(*grading.SubmissionRequest) {}, judge.ErrJudgeFailed, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)
			env.executor.err = tt.execErr

			req := submission("u1", "q1", "print(input())")
			tt.mutate(&req)
			w := env.do(t, http.MethodPost, "/v1/submissions", req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSubmit_JudgeErrorLeavesProgressUntouched(t *testing.T) {
	env := setupTestServer(t)
	env.executor.err = judge.ErrJudgeUnavailable

	env.do(t, http.MethodPost, "/v1/submissions", submission("u1", "q1", "print(input())"))

	w := env.do(t, http.MethodGet, "/v1/progress/u1/arrays", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSubmit_Async(t *testing.T) {
	env := setupTestServer(t)

	body := map[string]any{
		"user_id":     "u1",
		"question_id": "q1",
		"topic":       "arrays",
		"language":    "python",
		"code":        "print(input())",
		"test_cases":  []map[string]string{{"input": "1", "expected_output": "1"}},
		"async":       true,
	}

	// without a broker
	w := env.do(t, http.MethodPost, "/v1/submissions", body)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}

	q := &fakeQueue{}
	env.server.svc.Queue = q
	w = env.do(t, http.MethodPost, "/v1/submissions", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}
	resp := decode[map[string]string](t, w)
	if resp["status"] != "queued" || resp["job_id"] == "" {
		t.Errorf("response = %v", resp)
	}
	if len(q.jobs) != 1 || q.jobs[0].Request.UserID != "u1" {
		t.Fatalf("jobs = %+v", q.jobs)
	}
	if resp["submission_id"] != q.jobs[0].Request.SubmissionID.String() {
		t.Errorf("submission_id = %s, want %s", resp["submission_id"], q.jobs[0].Request.SubmissionID)
	}

	// nothing graded synchronously
	if w := env.do(t, http.MethodGet, "/v1/progress/u1/arrays", nil); w.Code != http.StatusNotFound {
		t.Errorf("progress status = %d, want 404", w.Code)
	}
}

func TestProgressAndAnalytics(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, http.MethodPost, "/v1/submissions", submission("u1", "q1", "print(input())"))
	wrong := submission("u1", "q2", "print(0)")
	wrong.TestCases = []domain.TestCase{{Input: "1", ExpectedOutput: "2"}}
	env.do(t, http.MethodPost, "/v1/submissions", wrong)

	w := env.do(t, http.MethodGet, "/v1/progress/u1", nil)
	list := decode[map[string][]domain.ProgressCounter](t, w)
	if len(list["topics"]) != 1 || list["topics"][0].Attempts != 2 {
		t.Fatalf("topics = %+v", list["topics"])
	}
	if list["topics"][0].Accuracy != 50 {
		t.Errorf("accuracy = %d, want 50", list["topics"][0].Accuracy)
	}

	w = env.do(t, http.MethodGet, "/v1/analytics/u1/overview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("overview status = %d", w.Code)
	}
	overview := decode[analytics.Overview](t, w)
	if overview.TotalAttempts != 2 || overview.TotalSolved != 1 {
		t.Errorf("overview = %+v", overview)
	}

	w = env.do(t, http.MethodGet, "/v1/analytics/u1/submissions?limit=1", nil)
	subs := decode[map[string][]domain.SubmissionRecord](t, w)
	if len(subs["submissions"]) != 1 {
		t.Errorf("submissions = %d, want 1", len(subs["submissions"]))
	}

	w = env.do(t, http.MethodGet, "/v1/analytics/u1/topics", nil)
	if w.Code != http.StatusOK {
		t.Errorf("topics status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/v1/analytics/u1/progression", nil)
	if w.Code != http.StatusOK {
		t.Errorf("progression status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/v1/analytics/activity?window=1h", nil)
	activity := decode[struct {
		Events map[string]int `json:"events"`
	}](t, w)
	if activity.Events[EventSubmissionGraded] != 2 {
		t.Errorf("activity = %v", activity.Events)
	}
}

func TestNotFoundAndBadIDs(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/v1/analytics/nobody/overview", http.StatusNotFound},
		{"/v1/progress/nobody/arrays", http.StatusNotFound},
		{"/v1/submissions/" + uuid.NewString(), http.StatusNotFound},
		{"/v1/submissions/not-a-uuid", http.StatusBadRequest},
		{"/v1/content/" + uuid.NewString(), http.StatusNotFound},
		{"/v1/content?kind=essay", http.StatusBadRequest},
		{"/v1/analytics/activity?window=soon", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want >= 400 && !strings.Contains(w.Header().Get("Content-Type"), "application/json") {
				t.Error("error responses must be JSON")
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	env := setupTestServer(t)
	server, err := NewServer(ServerConfig{
		Services:           env.server.svc,
		RateLimitPerSecond: 1,
		Logger:             quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Shutdown(context.Background())

	limited := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/generate/quiz", strings.NewReader(`{"topic":"go"}`))
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Error("expected some requests to be rate limited")
	}

	// GETs are not limited
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("health status = %d", w.Code)
		}
	}
}
