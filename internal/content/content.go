// Package content generates roadmaps, quizzes and coding problems through the
// AI router, validates them, caches them by request parameters and stores
// them in the document store.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/cache"
	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/llm"
)

// EventContentGenerated is recorded after a fresh document is produced.
const EventContentGenerated = "content_generated"

// Generator produces a JSON document for a prompt. *llm.Router satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*llm.Result, error)
}

// Store persists generated documents.
type Store interface {
	SaveContent(ctx context.Context, rec *domain.ContentRecord) error
	GetContent(ctx context.Context, id uuid.UUID) (*domain.ContentRecord, error)
	ListContent(ctx context.Context, kind domain.ContentKind, topic string, limit int) ([]*domain.ContentRecord, error)
}

// EventRecorder records activity events.
type EventRecorder interface {
	Record(ctx context.Context, eventType, userID string, data any) error
}

// Config tunes the service.
type Config struct {
	CacheTTL          time.Duration
	MaxAttempts       int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		CacheTTL:          24 * time.Hour,
		MaxAttempts:       3,
		RetryInitialDelay: time.Second,
		RetryMaxDelay:     10 * time.Second,
	}
}

// Document is a generated record together with its decoded body.
type Document[T any] struct {
	Record *domain.ContentRecord `json:"record"`
	Body   *T                    `json:"body"`
	Cached bool                  `json:"cached"`
}

// Service generates and stores learning content.
type Service struct {
	gen     Generator
	cache   cache.Cache
	store   Store
	events  EventRecorder
	cfg     Config
	retrier retry.Retry[*llm.Result]
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the cache. Without one, every request is generated.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithStore sets the document store.
func WithStore(st Store) Option {
	return func(s *Service) { s.store = st }
}

// WithEvents sets the event recorder.
func WithEvents(e EventRecorder) Option {
	return func(s *Service) { s.events = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a content service.
func NewService(gen Generator, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = def.RetryInitialDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}

	s := &Service{
		gen:    gen,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.retrier = retry.New[*llm.Result](retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.RetryInitialDelay,
		MaxDelay:      cfg.RetryMaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   llm.IsRetryable,
	})
	return s
}

// GenerateRoadmap produces a learning roadmap for a topic and level.
func (s *Service) GenerateRoadmap(ctx context.Context, req RoadmapRequest) (*Document[domain.Roadmap], error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	return generate(ctx, s, domain.ContentRoadmap, req.Topic, req.cacheKey(), roadmapPrompt(req),
		func(r *domain.Roadmap) error { return r.Validate() })
}

// GenerateQuiz produces a multiple-choice quiz.
func (s *Service) GenerateQuiz(ctx context.Context, req QuizRequest) (*Document[domain.Quiz], error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	return generate(ctx, s, domain.ContentQuiz, req.Topic, req.cacheKey(), quizPrompt(req),
		func(q *domain.Quiz) error {
			if q.Topic == "" {
				q.Topic = req.Topic
			}
			return q.Validate()
		})
}

// GenerateProblem produces a coding problem with judge test cases.
func (s *Service) GenerateProblem(ctx context.Context, req ProblemRequest) (*Document[domain.Problem], error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	return generate(ctx, s, domain.ContentProblem, req.Topic, req.cacheKey(), problemPrompt(req),
		func(p *domain.Problem) error {
			if p.Difficulty == "" {
				p.Difficulty = req.Difficulty
			}
			return p.Validate()
		})
}

// Get loads a stored document by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.ContentRecord, error) {
	if s.store == nil {
		return nil, domain.ErrContentNotFound
	}
	return s.store.GetContent(ctx, id)
}

// List returns stored documents of a kind, newest first.
func (s *Service) List(ctx context.Context, kind domain.ContentKind, topic string, limit int) ([]*domain.ContentRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListContent(ctx, kind, normalizeText(topic), limit)
}

func generate[T any](
	ctx context.Context,
	s *Service,
	kind domain.ContentKind,
	topic, key, prompt string,
	validate func(*T) error,
) (*Document[T], error) {
	if doc, ok := cached[T](ctx, s, key, validate); ok {
		return doc, nil
	}

	result, err := s.retrier.Do(ctx, func(ctx context.Context) (*llm.Result, error) {
		return s.gen.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", kind, err)
	}

	var body T
	if err := json.Unmarshal(result.JSON, &body); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidContent, kind, err)
	}
	if err := validate(&body); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}

	rec := &domain.ContentRecord{
		ID:        uuid.New(),
		Kind:      kind,
		Topic:     topic,
		CacheKey:  key,
		Provider:  result.Provider,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}

	if s.store != nil {
		if err := s.store.SaveContent(ctx, rec); err != nil {
			return nil, fmt.Errorf("save %s: %w", kind, err)
		}
	}
	s.remember(ctx, key, rec)

	if s.events != nil {
		data := map[string]string{"kind": string(kind), "topic": topic, "provider": rec.Provider}
		if err := s.events.Record(ctx, EventContentGenerated, "", data); err != nil {
			s.logger.Warn("failed to record event", "event", EventContentGenerated, "error", err)
		}
	}

	s.logger.Info("content generated",
		"kind", kind,
		"topic", topic,
		"provider", rec.Provider,
		"id", rec.ID)

	return &Document[T]{Record: rec, Body: &body}, nil
}

func cached[T any](ctx context.Context, s *Service, key string, validate func(*T) error) (*Document[T], bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var rec domain.ContentRecord
	var body T
	if err := json.Unmarshal(raw, &rec); err == nil {
		err = json.Unmarshal(rec.Payload, &body)
		if err == nil {
			err = validate(&body)
		}
		if err == nil {
			return &Document[T]{Record: &rec, Body: &body, Cached: true}, true
		}
	}

	s.logger.Warn("discarding unreadable cache entry", "key", key)
	_ = s.cache.Delete(ctx, key)
	return nil, false
}

func (s *Service) remember(ctx context.Context, key string, rec *domain.ContentRecord) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// IsInvalid reports whether err means the provider returned unusable content.
func IsInvalid(err error) bool {
	return errors.Is(err, domain.ErrInvalidContent) || errors.Is(err, llm.ErrMalformedResponse)
}
