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
	"net/url"
	"strings"
	"time"
)

const (
	geminiName           = "gemini"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultCallTimeout   = 60 * time.Second

	// jsonInstruction is appended to every Gemini prompt
	jsonInstruction = "\n\nRespond with raw JSON only. Do not wrap the answer in markdown code fences " +
		"and do not add any text before or after it. Escape double quotes and newlines inside string values."
)

// GeminiConfig holds configuration for the Gemini client
type GeminiConfig struct {
	Keys    []string
	Models  []string // tried in order for each admitted key
	BaseURL string   // default: https://generativelanguage.googleapis.com/v1beta

	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
	CallTimeout     time.Duration

	Pool       KeyPoolConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// GeminiClient generates JSON through the Gemini generateContent API,
// rotating over a pool of keys with a per-key rate window.
type GeminiClient struct {
	pool        *KeyPool
	models      []string
	baseURL     string
	temperature float64
	topK        int
	topP        float64
	maxTokens   int
	callTimeout time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewGeminiClient creates a Gemini client. A client without keys is valid;
// every call on it fails with ErrNotConfigured.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{defaultGeminiModel}
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.TopK == 0 {
		cfg.TopK = 40
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.95
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 8192
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
	if cfg.Pool.Logger == nil {
		cfg.Pool.Logger = cfg.Logger
	}

	return &GeminiClient{
		pool:        NewKeyPool(cfg.Keys, cfg.Pool),
		models:      cfg.Models,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		topK:        cfg.TopK,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxOutputTokens,
		callTimeout: cfg.CallTimeout,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}
}

func (c *GeminiClient) Name() string {
	return geminiName
}

// PoolSize returns the number of configured keys
func (c *GeminiClient) PoolSize() int {
	return c.pool.Size()
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateJSON admits a key, walks the model list for it, and moves on to the
// next key when every model failed. Malformed output is returned as is.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	if c.pool.Size() == 0 {
		return nil, ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt < c.pool.Size(); attempt++ {
		key, err := c.pool.Acquire(ctx)
		if err != nil {
			if lastErr == nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrProviderExhausted, errors.Join(lastErr, err))
		}

		for _, model := range c.models {
			text, err := c.call(ctx, key, model, prompt)
			if err != nil {
				lastErr = err
				c.logger.Warn("gemini call failed",
					"model", model,
					"attempt", attempt+1,
					"rate_limited", errors.Is(err, ErrRateLimited),
					"error", err)
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			return ExtractJSON(text, EscapeNewlines)
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrProviderExhausted, lastErr)
}

func (c *GeminiClient) call(ctx context.Context, key, model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body, err := json.Marshal(c.buildRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(model), url.QueryEscape(key))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// *url.Error embeds the URL, which carries the key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &ProviderError{
			Provider:   geminiName,
			StatusCode: resp.StatusCode,
			Message:    geminiErrorMessage(raw),
		}
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return gr.text()
}

func (c *GeminiClient) buildRequest(prompt string) *geminiRequest {
	return &geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt + jsonInstruction}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      c.temperature,
			TopK:             c.topK,
			TopP:             c.topP,
			MaxOutputTokens:  c.maxTokens,
			ResponseMimeType: "application/json",
		},
	}
}

func (r *geminiResponse) text() (string, error) {
	if len(r.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	cand := r.Candidates[0]
	if len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned an empty candidate (finish reason %q)", cand.FinishReason)
	}
	return cand.Content.Parts[0].Text, nil
}

func geminiErrorMessage(raw []byte) string {
	var eb geminiErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
