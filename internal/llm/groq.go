package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	groqName           = "groq"
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqModel   = "llama-3.3-70b-versatile"

	groqSystemPrompt = "You are a JSON API. Reply with exactly one valid JSON object and nothing else: " +
		"no markdown, no code fences, no commentary."
)

// GroqConfig holds configuration for the Groq client
type GroqConfig struct {
	Keys        []string
	Model       string
	BaseURL     string // default: https://api.groq.com/openai/v1
	Temperature float64
	MaxTokens   int
	CallTimeout time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// GroqClient talks to the OpenAI-compatible Groq chat API. Keys are picked
// round-robin and every call makes exactly one HTTP attempt.
type GroqClient struct {
	keys        []string
	counter     atomic.Uint64
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	callTimeout time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewGroqClient creates a Groq client
func NewGroqClient(cfg GroqConfig) *GroqClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultGroqModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newProviderHTTPClient(cfg.CallTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	keys := make([]string, 0, len(cfg.Keys))
	for _, k := range cfg.Keys {
		if k != "" {
			keys = append(keys, k)
		}
	}

	return &GroqClient{
		keys:        keys,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		callTimeout: cfg.CallTimeout,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}
}

func (c *GroqClient) Name() string {
	return groqName
}

// PoolSize returns the number of configured keys
func (c *GroqClient) PoolSize() int {
	return len(c.keys)
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      groqMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type groqErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateJSON calls the configured default model
func (c *GroqClient) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	return c.GenerateJSONWithModel(ctx, prompt, c.model)
}

// GenerateJSONWithModel calls the given model, falling back to the default
// when model is empty
func (c *GroqClient) GenerateJSONWithModel(ctx context.Context, prompt, model string) (json.RawMessage, error) {
	if len(c.keys) == 0 {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = c.model
	}

	text, err := c.call(ctx, c.nextKey(), model, prompt)
	if err != nil {
		return nil, err
	}
	return ExtractJSON(text, CollapseNewlines)
}

// nextKey returns keys in strict rotation across all callers
func (c *GroqClient) nextKey() string {
	n := c.counter.Add(1) - 1
	return c.keys[n%uint64(len(c.keys))]
}

func (c *GroqClient) call(ctx context.Context, key, model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body, err := json.Marshal(&groqRequest{
		Model: model,
		Messages: []groqMessage{
			{Role: "system", Content: groqSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		perr := &ProviderError{
			Provider:   groqName,
			StatusCode: resp.StatusCode,
			Message:    groqErrorMessage(raw),
		}
		c.logger.Warn("groq call failed", "model", model, "status", resp.StatusCode)
		return "", perr
	}

	var gr groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Choices) == 0 {
		return "", errors.New("groq returned no choices")
	}
	return gr.Choices[0].Message.Content, nil
}

func groqErrorMessage(raw []byte) string {
	var eb groqErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
