package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Generator produces a JSON document from a prompt
type Generator interface {
	// Name returns the provider name
	Name() string

	// GenerateJSON sends the prompt and extracts a JSON value from the answer
	GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error)
}

// Registry manages generators by name
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	defaultG   string
}

// NewRegistry creates a new generator registry
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
	}
}

// Register adds a generator to the registry
func (r *Registry) Register(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[name] = g
}

// SetDefault sets the default provider
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.generators[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	r.defaultG = name
	return nil
}

// Get retrieves a generator by name
func (r *Registry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return g, nil
}

// Has reports whether a generator is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.generators[name]
	return ok
}

// Default returns the default generator
func (r *Registry) Default() (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultG == "" {
		return nil, ErrNoDefaultProvider
	}
	g, ok := r.generators[r.defaultG]
	if !ok {
		return nil, ErrNoDefaultProvider
	}
	return g, nil
}

// List returns all registered provider names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultName returns the name of the default provider
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultG
}

// Close closes every registered generator implementing io.Closer
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for name, g := range r.generators {
		if c, ok := g.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
