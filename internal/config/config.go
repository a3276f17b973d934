// Package config loads skillforge settings from ~/.skillforge/config.yaml,
// ~/.skillforge/secrets.yaml and the environment, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	AI      AIConfig      `yaml:"ai"`
	Judge   JudgeConfig   `yaml:"judge"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Queue   QueueConfig   `yaml:"queue"`
}

// ServerConfig holds HTTP daemon settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`
	// RateLimitPerSecond caps generate and submit requests per client
	RateLimitPerSecond int `yaml:"rate_limit_per_second"`
}

// AIConfig selects and configures the content providers
type AIConfig struct {
	Provider string       `yaml:"provider"` // gemini, groq, hybrid
	Gemini   GeminiConfig `yaml:"gemini"`
	Groq     GroqConfig   `yaml:"groq"`
	// Resilience wraps each provider in a circuit breaker and bulkhead
	Resilience bool `yaml:"resilience"`
}

// GeminiConfig holds Gemini settings
type GeminiConfig struct {
	Keys              []string      `yaml:"-"`
	Models            []string      `yaml:"models"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxAdmissionWait  time.Duration `yaml:"max_admission_wait"`
}

// GroqConfig holds Groq settings
type GroqConfig struct {
	Keys  []string `yaml:"-"`
	Model string   `yaml:"model"`
}

// JudgeConfig selects the code execution backend
type JudgeConfig struct {
	Backend       string       `yaml:"backend"` // judge0, docker
	URL           string       `yaml:"url"`
	AuthToken     string       `yaml:"-"`
	RapidAPIKey   string       `yaml:"-"`
	RapidAPIHost  string       `yaml:"rapidapi_host"`
	MaxConcurrent int          `yaml:"max_concurrent"`
	Docker        DockerConfig `yaml:"docker"`
}

// DockerConfig holds local Docker judge settings
type DockerConfig struct {
	MemoryMB   int     `yaml:"memory_mb"`
	CPULimit   float64 `yaml:"cpu_limit"`
	NetworkOff bool    `yaml:"network_off"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite, postgres
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"-"`
}

// CacheConfig configures the generated-content cache
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"-"`
	TTL           time.Duration `yaml:"ttl"`
}

// QueueConfig configures asynchronous grading
type QueueConfig struct {
	URL     string `yaml:"-"`
	Workers int    `yaml:"workers"`
}

// Addr returns the daemon listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Load builds the configuration from defaults, the files in the skillforge
// directory and the environment.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFile(dir)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Judge.Backend {
	case "judge0", "docker":
	default:
		return fmt.Errorf("unknown judge backend %q", c.Judge.Backend)
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}

// applyEnv overlays environment variables
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.Bind = getEnv("BIND", cfg.Server.Bind)
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", cfg.Server.LogLevel)
	cfg.Server.Debug = getEnvBool("DEBUG", cfg.Server.Debug)
	cfg.Server.RateLimitPerSecond = getEnvInt("RATE_LIMIT_PER_SECOND", cfg.Server.RateLimitPerSecond)

	cfg.AI.Provider = getEnv("AI_PROVIDER", cfg.AI.Provider)
	cfg.AI.Resilience = getEnvBool("AI_RESILIENCE", cfg.AI.Resilience)
	if keys := keyPool("GEMINI_API_KEY"); len(keys) > 0 {
		cfg.AI.Gemini.Keys = keys
	}
	if models := getEnvList("GEMINI_MODELS"); len(models) > 0 {
		cfg.AI.Gemini.Models = models
	}
	cfg.AI.Gemini.RequestsPerMinute = getEnvInt("GEMINI_RPM", cfg.AI.Gemini.RequestsPerMinute)
	if keys := keyPool("GROQ_API_KEY"); len(keys) > 0 {
		cfg.AI.Groq.Keys = keys
	}
	cfg.AI.Groq.Model = getEnv("GROQ_MODEL", cfg.AI.Groq.Model)

	cfg.Judge.Backend = getEnv("JUDGE_BACKEND", cfg.Judge.Backend)
	cfg.Judge.URL = getEnv("JUDGE0_URL", cfg.Judge.URL)
	cfg.Judge.AuthToken = getEnv("JUDGE0_AUTH_TOKEN", cfg.Judge.AuthToken)
	cfg.Judge.RapidAPIKey = getEnv("RAPIDAPI_KEY", cfg.Judge.RapidAPIKey)
	cfg.Judge.RapidAPIHost = getEnv("RAPIDAPI_HOST", cfg.Judge.RapidAPIHost)
	cfg.Judge.MaxConcurrent = getEnvInt("JUDGE_MAX_CONCURRENT", cfg.Judge.MaxConcurrent)

	cfg.Storage.Driver = getEnv("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.SQLitePath = getEnv("SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.DatabaseURL = getEnv("DATABASE_URL", cfg.Storage.DatabaseURL)

	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", cfg.Cache.TTL)

	cfg.Queue.URL = getEnv("RABBITMQ_URL", cfg.Queue.URL)
	cfg.Queue.Workers = getEnvInt("QUEUE_WORKERS", cfg.Queue.Workers)
}

// keyPool collects PREFIX followed by PREFIX_1, PREFIX_2, ... up to the
// first missing index. Blank and duplicate keys are skipped.
func keyPool(prefix string) []string {
	var keys []string
	seen := make(map[string]bool)
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		keys = append(keys, v)
	}

	add(os.Getenv(prefix))
	for i := 1; ; i++ {
		v, ok := os.LookupEnv(prefix + "_" + strconv.Itoa(i))
		if !ok {
			break
		}
		add(v)
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
