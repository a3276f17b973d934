package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
)

const (
	defaultBaseURL        = "https://ce.judge0.com"
	defaultAttemptTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultCPUTimeLimit   = 2.0
	defaultMemoryLimitKB  = 128000

	rateLimitBackoff = 2000 * time.Millisecond
	failureBackoff   = 1000 * time.Millisecond
)

// ClientConfig holds configuration for the Judge0 client
type ClientConfig struct {
	BaseURL string // default: https://ce.judge0.com

	// AuthToken is sent as X-Auth-Token for self-hosted instances
	AuthToken string

	// RapidAPIKey and RapidAPIHost select the RapidAPI-hosted judge
	RapidAPIKey  string
	RapidAPIHost string

	AttemptTimeout time.Duration
	MaxAttempts    int

	// MaxConcurrent caps in-flight judge calls; zero disables the bulkhead
	MaxConcurrent int

	HTTPClient *http.Client
	Logger     *slog.Logger

	// Sleep is replaceable for tests
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client submits code to Judge0 synchronously (wait=true) with a small retry
// budget. 429 answers back off linearly by attempt, anything else flat.
type Client struct {
	baseURL        string
	authToken      string
	rapidKey       string
	rapidHost      string
	attemptTimeout time.Duration
	maxAttempts    int
	bulkhead       bulkhead.Bulkhead[*Verdict]
	httpClient     *http.Client
	logger         *slog.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

var _ Executor = (*Client)(nil)

// NewClient creates a Judge0 client
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newJudgeHTTPClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		authToken:      cfg.AuthToken,
		rapidKey:       cfg.RapidAPIKey,
		rapidHost:      cfg.RapidAPIHost,
		attemptTimeout: cfg.AttemptTimeout,
		maxAttempts:    cfg.MaxAttempts,
		httpClient:     cfg.HTTPClient,
		logger:         cfg.Logger,
		sleep:          cfg.Sleep,
	}

	if cfg.MaxConcurrent > 0 {
		c.bulkhead = bulkhead.New[*Verdict](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent * 4,
			QueueTimeout:  2 * time.Minute,
		})
	}

	return c
}

type submissionRequest struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit"`
	MemoryLimit    int     `json:"memory_limit"`
}

type submissionResponse struct {
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Time          *string `json:"time"`
	Memory        *int    `json:"memory"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

// attemptError is one failed round trip; status is zero for transport errors
type attemptError struct {
	status int
	err    error
}

func (e *attemptError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("judge answered %d: %v", e.status, e.err)
	}
	return e.err.Error()
}

func (e *attemptError) Unwrap() error { return e.err }

func (e *attemptError) rateLimited() bool {
	return e.status == http.StatusTooManyRequests
}

// Execute runs the submission. Unsupported languages fail before any network
// call. Exhausting every attempt yields ErrJudgeUnavailable when the last
// failure was a 429 and ErrJudgeFailed otherwise.
func (c *Client) Execute(ctx context.Context, sub Submission) (*Verdict, error) {
	langID, err := Judge0ID(sub.Language)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(buildRequest(sub, langID))
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	if c.bulkhead != nil {
		return c.bulkhead.Execute(ctx, func(ctx context.Context) (*Verdict, error) {
			return c.executeWithRetry(ctx, payload)
		})
	}
	return c.executeWithRetry(ctx, payload)
}

func (c *Client) executeWithRetry(ctx context.Context, payload []byte) (*Verdict, error) {
	var last *attemptError
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		verdict, aerr := c.submit(ctx, payload)
		if aerr == nil {
			return verdict, nil
		}
		last = aerr

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := failureBackoff
		if aerr.rateLimited() {
			delay = rateLimitBackoff * time.Duration(attempt)
		}
		c.logger.Warn("judge attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"backoff", delay,
			"error", aerr)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	c.logger.Error("judge attempts exhausted", "attempts", c.maxAttempts, "error", last)
	if last.rateLimited() {
		return nil, fmt.Errorf("%w after %d attempts", ErrJudgeUnavailable, c.maxAttempts)
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrJudgeFailed, c.maxAttempts)
}

func (c *Client) submit(ctx context.Context, payload []byte) (*Verdict, *attemptError) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	endpoint := c.baseURL + "/submissions?base64_encoded=true&wait=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("create request: %w", err)}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &attemptError{
			status: resp.StatusCode,
			err:    fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	var sr submissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, &attemptError{err: fmt.Errorf("decode response: %w", err)}
	}

	verdict, err := sr.decode()
	if err != nil {
		return nil, &attemptError{err: err}
	}
	return verdict, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
	if c.rapidKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.rapidKey)
		host := c.rapidHost
		if host == "" {
			host = strings.TrimPrefix(strings.TrimPrefix(c.baseURL, "https://"), "http://")
		}
		req.Header.Set("X-RapidAPI-Host", host)
	}
}

func buildRequest(sub Submission, langID int) *submissionRequest {
	cpu := sub.CPUTimeLimit
	if cpu <= 0 {
		cpu = defaultCPUTimeLimit
	}
	mem := sub.MemoryLimitKB
	if mem <= 0 {
		mem = defaultMemoryLimitKB
	}

	req := &submissionRequest{
		SourceCode:   encode(sub.SourceCode),
		LanguageID:   langID,
		Stdin:        encode(sub.Stdin),
		CPUTimeLimit: cpu,
		MemoryLimit:  mem,
	}
	if sub.ExpectedOutput != "" {
		req.ExpectedOutput = encode(sub.ExpectedOutput)
	}
	return req
}

func (r *submissionResponse) decode() (*Verdict, error) {
	v := &Verdict{Status: r.Status.Description}

	var err error
	if v.Stdout, err = decode(r.Stdout); err != nil {
		return nil, fmt.Errorf("decode stdout: %w", err)
	}
	if v.Stderr, err = decode(r.Stderr); err != nil {
		return nil, fmt.Errorf("decode stderr: %w", err)
	}
	if v.CompileOutput, err = decode(r.CompileOutput); err != nil {
		return nil, fmt.Errorf("decode compile_output: %w", err)
	}
	if r.Time != nil {
		v.Time = *r.Time
	}
	if r.Memory != nil {
		v.MemoryKB = *r.Memory
	}
	return v, nil
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decode accepts Judge0's line-wrapped base64
func decode(s *string) (string, error) {
	if s == nil || *s == "" {
		return "", nil
	}
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(*s)
	b, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func newJudgeHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
