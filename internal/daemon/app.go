package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/skillforge/internal/analytics"
	"github.com/felixgeelhaar/skillforge/internal/cache"
	"github.com/felixgeelhaar/skillforge/internal/config"
	"github.com/felixgeelhaar/skillforge/internal/content"
	"github.com/felixgeelhaar/skillforge/internal/grading"
	"github.com/felixgeelhaar/skillforge/internal/judge"
	"github.com/felixgeelhaar/skillforge/internal/llm"
	"github.com/felixgeelhaar/skillforge/internal/queue"
	"github.com/felixgeelhaar/skillforge/internal/storage"
)

// App owns everything Build opened
type App struct {
	Services *Services
	Router   *llm.Router
	// Conn is nil when no broker is configured or reachable
	Conn *queue.Connection

	logger  *slog.Logger
	closers []func() error
}

// Build opens storage, the cache, the AI router, the judge and, when
// configured, the broker connection.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{logger: logger}

	stores, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		DatabaseURL: cfg.Storage.DatabaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	app.closers = append(app.closers, stores.Close)

	contentCache := openCache(ctx, cfg.Cache, logger)
	app.closers = append(app.closers, contentCache.Close)

	executor, err := newExecutor(cfg.Judge, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	if c, ok := executor.(interface{ Close() error }); ok {
		app.closers = append(app.closers, c.Close)
	}

	app.Router = NewRouter(cfg.AI, logger)
	app.closers = append(app.closers, app.Router.Registry().Close)

	contentCfg := content.DefaultConfig()
	if cfg.Cache.TTL > 0 {
		contentCfg.CacheTTL = cfg.Cache.TTL
	}

	svc := &Services{
		Content: content.NewService(app.Router, contentCfg,
			content.WithCache(contentCache),
			content.WithStore(stores.Content),
			content.WithEvents(stores.Events),
			content.WithLogger(logger),
		),
		Grader:        grading.New(executor, stores.Submissions, grading.WithLogger(logger)),
		Analytics:     analytics.NewService(stores.Progress, stores.Submissions, stores.Events),
		Submissions:   stores.Submissions,
		Progress:      stores.Progress,
		Events:        stores.Events,
		Providers:     app.Router.Registry(),
		Mode:          app.Router.Mode(),
		JudgeBackend:  cfg.Judge.Backend,
		StorageDriver: stores.Driver,
	}

	if cfg.Queue.URL != "" {
		conn, err := queue.NewConnectionWithLogger(cfg.Queue.URL, logger)
		if err != nil {
			logger.Warn("broker unavailable, asynchronous grading disabled", "error", err)
		} else {
			app.Conn = conn
			app.closers = append(app.closers, conn.Close)
			svc.Queue = queue.NewProducer(conn)

			results := queue.NewResultConsumer(conn)
			if err := results.Start(ctx); err != nil {
				logger.Warn("result consumer unavailable, job status disabled", "error", err)
			} else {
				app.closers = append(app.closers, func() error { results.Stop(); return nil })
				svc.Jobs = newResultTracker(results, 0)
			}
		}
	}

	app.Services = svc
	return app, nil
}

// NewRouter builds and initializes the AI router from configuration
func NewRouter(cfg config.AIConfig, logger *slog.Logger) *llm.Router {
	rc := llm.RouterConfig{
		Mode: cfg.Provider,
		Gemini: llm.GeminiConfig{
			Keys:   cfg.Gemini.Keys,
			Models: cfg.Gemini.Models,
			Pool: llm.KeyPoolConfig{
				RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
				MaxAdmissionWait:  cfg.Gemini.MaxAdmissionWait,
			},
		},
		Groq: llm.GroqConfig{
			Keys:  cfg.Groq.Keys,
			Model: cfg.Groq.Model,
		},
		Logger: logger,
	}
	if cfg.Resilience {
		res := llm.DefaultResilientConfig()
		rc.Resilience = &res
	}

	router := llm.NewRouter(rc)
	router.Init()
	return router
}

func newExecutor(cfg config.JudgeConfig, logger *slog.Logger) (judge.Executor, error) {
	switch cfg.Backend {
	case "docker":
		exec, err := judge.NewDockerExecutor(judge.DockerConfig{
			MemoryMB:   cfg.Docker.MemoryMB,
			CPULimit:   cfg.Docker.CPULimit,
			NetworkOff: cfg.Docker.NetworkOff,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("docker judge: %w", err)
		}
		return exec, nil
	case "", "judge0":
		return judge.NewClient(judge.ClientConfig{
			BaseURL:       cfg.URL,
			AuthToken:     cfg.AuthToken,
			RapidAPIKey:   cfg.RapidAPIKey,
			RapidAPIHost:  cfg.RapidAPIHost,
			MaxConcurrent: cfg.MaxConcurrent,
			Logger:        logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown judge backend %q", cfg.Backend)
	}
}

// openCache connects to Redis when an address is configured and falls back
// to the in-process cache otherwise.
func openCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	rc, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
		return cache.NewMemory()
	}
	logger.Info("content cache ready", "backend", "redis", "addr", cfg.RedisAddr)
	return rc
}

// Submitter grades submissions and records a submission_graded event for
// each newly applied one
func (a *App) Submitter() queue.Submitter {
	return &recordingSubmitter{
		grader: a.Services.Grader,
		events: a.Services.Events,
		logger: a.logger,
	}
}

// JobHandler grades queued submissions and records their events
func (a *App) JobHandler() queue.JobHandler {
	return queue.GradingHandler(a.Submitter())
}

// Close releases everything in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type recordingSubmitter struct {
	grader queue.Submitter
	events content.EventRecorder
	logger *slog.Logger
}

func (r *recordingSubmitter) Submit(ctx context.Context, req grading.SubmissionRequest) (*grading.Outcome, error) {
	out, err := r.grader.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	RecordGraded(ctx, r.events, r.logger, req, out)
	return out, nil
}
