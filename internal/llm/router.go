package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Mode selects which providers the router uses
type Mode string

const (
	ModeGemini Mode = "gemini"
	ModeGroq   Mode = "groq"
	ModeHybrid Mode = "hybrid"
)

// ParseMode normalizes s. The second result is false for unknown modes,
// in which case ModeGemini is returned.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeGemini:
		return ModeGemini, true
	case ModeGroq:
		return ModeGroq, true
	case ModeHybrid:
		return ModeHybrid, true
	default:
		return ModeGemini, false
	}
}

// RouterConfig holds configuration for the AI router
type RouterConfig struct {
	Mode   string
	Gemini GeminiConfig
	Groq   GroqConfig

	// Resilience wraps each built provider when non-nil
	Resilience *ResilientConfig

	Logger *slog.Logger
}

// Result is a generated document plus the provider that produced it
type Result struct {
	Provider string
	JSON     json.RawMessage
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithGenerator pre-registers a generator; Init will not build a client
// for that name.
func WithGenerator(name string, g Generator) RouterOption {
	return func(r *Router) {
		r.registry.Register(name, g)
	}
}

// WithRegistry makes the router register its providers in reg
func WithRegistry(reg *Registry) RouterOption {
	return func(r *Router) {
		r.registry = reg
	}
}

// Router dispatches generation requests to Gemini, Groq, or both
type Router struct {
	cfg      RouterConfig
	mode     Mode
	registry *Registry
	logger   *slog.Logger

	once  sync.Once
	ready atomic.Bool
}

// NewRouter creates a router. Init must be called before the first request.
func NewRouter(cfg RouterConfig, opts ...RouterOption) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mode, ok := ParseMode(cfg.Mode)
	if !ok {
		logger.Warn("unknown AI provider mode, falling back to gemini", "mode", cfg.Mode)
	}

	r := &Router{
		cfg:      cfg,
		mode:     mode,
		registry: NewRegistry(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init builds both provider clients from configuration. Safe to call more
// than once; only the first call has any effect.
func (r *Router) Init() {
	r.once.Do(func() {
		if !r.registry.Has(geminiName) {
			gcfg := r.cfg.Gemini
			if gcfg.Logger == nil {
				gcfg.Logger = r.logger
			}
			client := NewGeminiClient(gcfg)
			r.logger.Info("gemini key pool loaded", "keys", client.PoolSize(), "models", len(client.models))
			r.registry.Register(geminiName, r.wrap(client))
		}

		if !r.registry.Has(groqName) {
			gcfg := r.cfg.Groq
			if gcfg.Logger == nil {
				gcfg.Logger = r.logger
			}
			client := NewGroqClient(gcfg)
			r.logger.Info("groq key pool loaded", "keys", client.PoolSize(), "model", client.model)
			r.registry.Register(groqName, r.wrap(client))
		}

		def := geminiName
		if r.mode == ModeGroq || r.mode == ModeHybrid {
			def = groqName
		}
		if err := r.registry.SetDefault(def); err != nil {
			r.logger.Error("set default provider", "error", err)
		}

		r.logger.Info("ai router initialized", "mode", string(r.mode))
		r.ready.Store(true)
	})
}

func (r *Router) wrap(g Generator) Generator {
	if r.cfg.Resilience == nil {
		return g
	}
	rc := *r.cfg.Resilience
	if rc.Logger == nil {
		rc.Logger = r.logger
	}
	return NewResilientGenerator(g, rc)
}

func (r *Router) Name() string {
	return "router:" + string(r.mode)
}

// Mode returns the active mode
func (r *Router) Mode() Mode {
	return r.mode
}

// Registry returns the provider registry
func (r *Router) Registry() *Registry {
	return r.registry
}

// GenerateJSON returns only the document of Generate
func (r *Router) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	res, err := r.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return res.JSON, nil
}

// Generate routes the prompt according to the mode. In hybrid mode Groq is
// tried first and any Groq failure falls through to Gemini.
func (r *Router) Generate(ctx context.Context, prompt string) (*Result, error) {
	if !r.ready.Load() {
		return nil, ErrRouterNotInitialized
	}

	switch r.mode {
	case ModeGroq:
		return r.generateWith(ctx, groqName, prompt)
	case ModeHybrid:
		res, groqErr := r.generateWith(ctx, groqName, prompt)
		if groqErr == nil {
			return res, nil
		}
		r.logger.Warn("groq failed, falling back to gemini", "error", groqErr)

		res, geminiErr := r.generateWith(ctx, geminiName, prompt)
		if geminiErr == nil {
			return res, nil
		}
		return nil, &HybridError{
			PrimaryName:  groqName,
			Primary:      groqErr,
			FallbackName: geminiName,
			Fallback:     geminiErr,
		}
	default:
		return r.generateWith(ctx, geminiName, prompt)
	}
}

func (r *Router) generateWith(ctx context.Context, name, prompt string) (*Result, error) {
	g, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}
	out, err := g.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &Result{Provider: name, JSON: out}, nil
}
