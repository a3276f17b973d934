// Package daemon serves the skillforge HTTP API.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/analytics"
	"github.com/felixgeelhaar/skillforge/internal/content"
	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/grading"
	"github.com/felixgeelhaar/skillforge/internal/llm"
	"github.com/felixgeelhaar/skillforge/internal/queue"
	"github.com/felixgeelhaar/skillforge/internal/storage"
)

// Version is reported by /v1/status
var Version = "dev"

// EventSubmissionGraded is recorded for every newly applied submission
const EventSubmissionGraded = "submission_graded"

// JobPublisher enqueues submissions for asynchronous grading
type JobPublisher interface {
	PublishSubmission(ctx context.Context, job *queue.SubmissionJob) error
}

// Services are the application services the API is built on. Events,
// Queue and Jobs are optional.
type Services struct {
	Content     *content.Service
	Grader      *grading.Orchestrator
	Analytics   *analytics.Service
	Submissions storage.SubmissionStore
	Progress    storage.ProgressStore
	Events      content.EventRecorder
	Queue       JobPublisher
	Jobs        JobTracker
	Providers   llm.LLMRegistry

	Mode          llm.Mode
	JudgeBackend  string
	StorageDriver string
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Addr string
	// RateLimitPerSecond caps POST requests per client; zero disables it
	RateLimitPerSecond int
	Services           *Services
	Logger             *slog.Logger
}

// Server represents the skillforge HTTP server
type Server struct {
	svc       *Services
	server    *http.Server
	router    *http.ServeMux
	limiter   ratelimit.RateLimiter
	logger    *slog.Logger
	startedAt time.Time
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Services == nil || cfg.Services.Content == nil || cfg.Services.Grader == nil {
		return nil, errors.New("content and grading services are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:       cfg.Services,
		router:    http.NewServeMux(),
		logger:    logger,
		startedAt: time.Now(),
	}
	s.setupRoutes()

	mws := []func(http.Handler) http.Handler{
		correlationIDMiddleware,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
	}
	if cfg.RateLimitPerSecond > 0 {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimitPerSecond,
			Burst:    cfg.RateLimitPerSecond * 2,
			Interval: time.Second,
		})
		mws = append(mws, rateLimitMiddleware(s.limiter))
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      chain(s.router, mws...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // generation and grading are slow
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/providers", s.handleListProviders)

	// Content
	s.router.HandleFunc("POST /v1/generate/{kind}", s.handleGenerate)
	s.router.HandleFunc("GET /v1/content", s.handleListContent)
	s.router.HandleFunc("GET /v1/content/{id}", s.handleGetContent)

	// Grading
	s.router.HandleFunc("POST /v1/submissions", s.handleSubmit)
	s.router.HandleFunc("GET /v1/submissions/{id}", s.handleGetSubmission)
	s.router.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)

	// Progress & analytics
	s.router.HandleFunc("GET /v1/progress/{user}", s.handleListProgress)
	s.router.HandleFunc("GET /v1/progress/{user}/{topic}", s.handleGetProgress)
	s.router.HandleFunc("GET /v1/analytics/activity", s.handleActivity)
	s.router.HandleFunc("GET /v1/analytics/{user}/overview", s.handleAnalyticsOverview)
	s.router.HandleFunc("GET /v1/analytics/{user}/topics", s.handleAnalyticsTopics)
	s.router.HandleFunc("GET /v1/analytics/{user}/submissions", s.handleAnalyticsSubmissions)
	s.router.HandleFunc("GET /v1/analytics/{user}/progression", s.handleAnalyticsProgression)
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting skillforge daemon",
		"addr", s.server.Addr,
		"mode", s.svc.Mode,
		"judge", s.svc.JudgeBackend,
		"storage", s.svc.StorageDriver,
		"async_grading", s.svc.Queue != nil,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")
	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			s.logger.Warn("failed to close rate limiter", "error", err)
		}
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "running",
		"version":        Version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"mode":           s.svc.Mode,
		"judge":          s.svc.JudgeBackend,
		"storage":        s.svc.StorageDriver,
		"async_grading":  s.svc.Queue != nil,
	})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	def := ""
	if s.svc.Providers != nil {
		names = s.svc.Providers.List()
		def = s.svc.Providers.DefaultName()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":      s.svc.Mode,
		"default":   def,
		"providers": names,
	})
}

type generateRequest struct {
	Topic      string `json:"topic"`
	Level      string `json:"level,omitempty"`
	Count      int    `json:"count,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseContentKind(r.PathValue("kind"))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}

	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		s.jsonError(w, r, err)
		return
	}

	ctx := r.Context()
	var doc any
	switch kind {
	case domain.ContentRoadmap:
		doc, err = s.svc.Content.GenerateRoadmap(ctx, content.RoadmapRequest{Topic: req.Topic, Level: req.Level})
	case domain.ContentQuiz:
		doc, err = s.svc.Content.GenerateQuiz(ctx, content.QuizRequest{Topic: req.Topic, Count: req.Count, Difficulty: req.Difficulty})
	case domain.ContentProblem:
		doc, err = s.svc.Content.GenerateProblem(ctx, content.ProblemRequest{Topic: req.Topic, Difficulty: req.Difficulty})
	}
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	rec, err := s.svc.Content.Get(r.Context(), id)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := domain.ParseContentKind(q.Get("kind"))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	recs, err := s.svc.Content.List(r.Context(), kind, q.Get("topic"), queryInt(r, "limit", 0))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*domain.ContentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}

type submitRequest struct {
	grading.SubmissionRequest
	Async bool `json:"async,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		s.jsonError(w, r, err)
		return
	}
	if err := validateSubmission(req.SubmissionRequest); err != nil {
		s.jsonError(w, r, err)
		return
	}

	if req.Async {
		s.enqueueSubmission(w, r, req.SubmissionRequest)
		return
	}

	out, err := s.svc.Grader.Submit(r.Context(), req.SubmissionRequest)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	RecordGraded(r.Context(), s.svc.Events, s.logger, req.SubmissionRequest, out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) enqueueSubmission(w http.ResponseWriter, r *http.Request, req grading.SubmissionRequest) {
	if s.svc.Queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:  "asynchronous grading is not configured",
			Status: http.StatusServiceUnavailable,
		})
		return
	}

	job := queue.NewSubmissionJob(req)
	if s.svc.Jobs != nil {
		s.svc.Jobs.Track(job.ID)
	}
	if err := s.svc.Queue.PublishSubmission(r.Context(), job); err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":        "queued",
		"job_id":        job.ID,
		"submission_id": job.Request.SubmissionID,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	if s.svc.Jobs == nil {
		s.jsonError(w, r, domain.ErrNotFound)
		return
	}
	out, ok := s.svc.Jobs.Lookup(id)
	if !ok {
		s.jsonError(w, r, fmt.Errorf("%w: job %s", domain.ErrNotFound, id))
		return
	}
	if out == nil {
		writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "status": "queued"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	rec, err := s.svc.Submissions.Get(r.Context(), id)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListProgress(w http.ResponseWriter, r *http.Request) {
	counters, err := s.svc.Progress.ListByUser(r.Context(), r.PathValue("user"))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	if counters == nil {
		counters = []*domain.ProgressCounter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": counters})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Progress.Get(r.Context(), r.PathValue("user"), r.PathValue("topic"))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.svc.Analytics.Overview(r.Context(), r.PathValue("user"))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleAnalyticsTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.svc.Analytics.TopicBreakdown(r.Context(), r.PathValue("user"))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleAnalyticsSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.svc.Analytics.RecentSubmissions(r.Context(), r.PathValue("user"), queryInt(r, "limit", 0))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (s *Server) handleAnalyticsProgression(w http.ResponseWriter, r *http.Request) {
	points, err := s.svc.Analytics.Progression(r.Context(), r.PathValue("user"), queryInt(r, "limit", 0))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.jsonError(w, r, fmt.Errorf("%w: window must be a positive duration", domain.ErrInvalidInput))
			return
		}
		window = d
	}
	counts, err := s.svc.Analytics.Activity(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window": window.String(),
		"events": counts,
	})
}

// RecordGraded records a submission_graded event for a newly applied
// submission. Failures are logged and otherwise ignored.
func RecordGraded(ctx context.Context, events content.EventRecorder, logger *slog.Logger, req grading.SubmissionRequest, out *grading.Outcome) {
	if events == nil || out == nil || !out.Applied {
		return
	}
	data := map[string]any{
		"submission_id": out.Result.SubmissionID,
		"question_id":   req.QuestionID,
		"topic":         req.Topic,
		"language":      req.Language,
		"verdict":       out.Result.Verdict,
		"passed":        out.Result.Passed,
		"total":         out.Result.Total,
	}
	if err := events.Record(ctx, EventSubmissionGraded, req.UserID, data); err != nil {
		logger.Warn("failed to record event", "event", EventSubmissionGraded, "error", err)
	}
}

func validateSubmission(req grading.SubmissionRequest) error {
	var missing []string
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(req.QuestionID) == "" {
		missing = append(missing, "question_id")
	}
	if strings.TrimSpace(req.Topic) == "" {
		missing = append(missing, "topic")
	}
	if strings.TrimSpace(req.Language) == "" {
		missing = append(missing, "language")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	if strings.TrimSpace(req.Code) == "" {
		return domain.ErrEmptyCode
	}
	if len(req.TestCases) == 0 {
		return domain.ErrNoTestCases
	}
	return nil
}

// Helper methods

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", domain.ErrInvalidInput, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// jsonError writes the mapped status for err. Details are only exposed for
// client errors.
func (s *Server) jsonError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	body := errorBody{Error: message, Status: status}
	// upstream provider and judge messages pass through; internal errors do not
	if status != http.StatusInternalServerError {
		body.Details = err.Error()
	}
	if status >= 500 {
		s.logger.Error("request failed",
			"correlation_id", GetCorrelationID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, body)
}
