package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrProviderNotFound     = errors.New("provider not found")
	ErrNoDefaultProvider    = errors.New("no default provider configured")
	ErrNotConfigured        = errors.New("provider not configured: no API keys available")
	ErrRateLimited          = errors.New("rate limited")
	ErrMalformedResponse    = errors.New("malformed JSON response")
	ErrProviderExhausted    = errors.New("provider exhausted: every key and model failed")
	ErrRouterNotInitialized = errors.New("ai router not initialized")
)

// ProviderError is a non-2xx answer from an upstream LLM API
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrRateLimited) match a 429 answer
func (e *ProviderError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// HybridError is returned when both providers of hybrid mode fail.
// The message carries both underlying messages verbatim.
type HybridError struct {
	PrimaryName  string
	Primary      error
	FallbackName string
	Fallback     error
}

func (e *HybridError) Error() string {
	return fmt.Sprintf("all AI providers failed: %s: %v | %s: %v",
		e.PrimaryName, e.Primary, e.FallbackName, e.Fallback)
}

func (e *HybridError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// IsRetryable reports whether a fresh call may succeed where this one failed
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrRateLimited)
}
