package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
)

// ResilientGenerator wraps a generator with resilience patterns from fortify.
// Every failure, an open breaker included, is returned as an ordinary error so
// the router can still fail over.
type ResilientGenerator struct {
	generator      Generator
	circuitBreaker circuitbreaker.CircuitBreaker[json.RawMessage]
	bulkhead       bulkhead.Bulkhead[json.RawMessage]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
	name           string
}

// ResilientConfig holds configuration for the resilient wrapper
type ResilientConfig struct {
	// EnableCircuitBreaker trips after consecutive provider failures
	EnableCircuitBreaker bool

	// EnableBulkhead bounds concurrent calls
	EnableBulkhead bool

	// EnableRateLimit applies a process-local token bucket
	EnableRateLimit bool

	// MaxConcurrent for bulkhead (default: 5)
	MaxConcurrent int

	// RatePerSecond for rate limiting (default: 2)
	RatePerSecond int

	// OpenTimeout is how long the breaker stays open (default: 60s)
	OpenTimeout time.Duration

	Logger *slog.Logger
}

// DefaultResilientConfig returns the defaults used by the daemon
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableBulkhead:       true,
		EnableRateLimit:      false,
		MaxConcurrent:        5,
		RatePerSecond:        2,
		OpenTimeout:          60 * time.Second,
	}
}

// NewResilientGenerator wraps g with the patterns enabled in cfg
func NewResilientGenerator(g Generator, cfg ResilientConfig) *ResilientGenerator {
	rg := &ResilientGenerator{
		generator: g,
		logger:    cfg.Logger,
		name:      g.Name(),
	}

	if cfg.EnableCircuitBreaker {
		openTimeout := cfg.OpenTimeout
		if openTimeout <= 0 {
			openTimeout = 60 * time.Second
		}
		rg.circuitBreaker = circuitbreaker.New[json.RawMessage](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				if rg.logger != nil {
					rg.logger.Warn("circuit breaker state change",
						"provider", g.Name(),
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 5
		}
		rg.bulkhead = bulkhead.New[json.RawMessage](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  30 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 2
		}
		rg.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 3,
			Interval: time.Second,
		})
	}

	return rg
}

func (g *ResilientGenerator) Name() string {
	return g.generator.Name()
}

// Unwrap returns the wrapped generator
func (g *ResilientGenerator) Unwrap() Generator {
	return g.generator
}

func (g *ResilientGenerator) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	if g.rateLimit != nil {
		if !g.rateLimit.Allow(ctx, g.name) {
			return nil, fmt.Errorf("%w: local limit for provider %s", ErrRateLimited, g.name)
		}
	}

	operation := func(ctx context.Context) (json.RawMessage, error) {
		return g.generator.GenerateJSON(ctx, prompt)
	}

	if g.bulkhead != nil {
		operation = func(ctx context.Context) (json.RawMessage, error) {
			return g.bulkhead.Execute(ctx, func(ctx context.Context) (json.RawMessage, error) {
				return g.generator.GenerateJSON(ctx, prompt)
			})
		}
	}

	if g.circuitBreaker != nil {
		out, err := g.circuitBreaker.Execute(ctx, operation)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.name, err)
		}
		return out, nil
	}

	return operation(ctx)
}

// Close releases resources held by the wrapper
func (g *ResilientGenerator) Close() error {
	if g.rateLimit != nil {
		return g.rateLimit.Close()
	}
	return nil
}
