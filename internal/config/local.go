package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SecretsConfig holds credentials loaded from secrets.yaml
type SecretsConfig struct {
	GeminiKeys      []string `yaml:"gemini_api_keys,omitempty"`
	GroqKeys        []string `yaml:"groq_api_keys,omitempty"`
	Judge0AuthToken string   `yaml:"judge0_auth_token,omitempty"`
	RapidAPIKey     string   `yaml:"rapidapi_key,omitempty"`
	DatabaseURL     string   `yaml:"database_url,omitempty"`
	RedisPassword   string   `yaml:"redis_password,omitempty"`
	RabbitMQURL     string   `yaml:"rabbitmq_url,omitempty"`
}

// Dir returns the path to ~/.skillforge
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".skillforge"), nil
}

// EnsureDir creates ~/.skillforge and its subdirectories
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "data"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// Default returns the settings used when nothing is configured
func Default() *Config {
	sqlitePath := filepath.Join(".skillforge", "data", "skillforge.db")
	if dir, err := Dir(); err == nil {
		sqlitePath = filepath.Join(dir, "data", "skillforge.db")
	}

	return &Config{
		Server: ServerConfig{
			Port:               7433,
			Bind:               "127.0.0.1",
			LogLevel:           "info",
			RateLimitPerSecond: 5,
		},
		AI: AIConfig{
			Provider: "gemini",
			Gemini: GeminiConfig{
				Models:            []string{"gemini-2.0-flash"},
				RequestsPerMinute: 15,
				MaxAdmissionWait:  60 * time.Second,
			},
			Groq: GroqConfig{
				Model: "llama-3.3-70b-versatile",
			},
		},
		Judge: JudgeConfig{
			Backend:       "judge0",
			URL:           "https://ce.judge0.com",
			RapidAPIHost:  "judge0-ce.p.rapidapi.com",
			MaxConcurrent: 4,
			Docker: DockerConfig{
				MemoryMB:   256,
				CPULimit:   1.0,
				NetworkOff: true,
			},
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: sqlitePath,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Queue: QueueConfig{
			Workers: 3,
		},
	}
}

// LoadFile reads config.yaml and secrets.yaml from dir over the defaults.
// Missing files are not an error.
func LoadFile(dir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

func loadSecrets(dir string, cfg *Config) error {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	data, err := os.ReadFile(secretsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var s SecretsConfig
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	if len(s.GeminiKeys) > 0 {
		cfg.AI.Gemini.Keys = s.GeminiKeys
	}
	if len(s.GroqKeys) > 0 {
		cfg.AI.Groq.Keys = s.GroqKeys
	}
	setIfEmpty := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIfEmpty(&cfg.Judge.AuthToken, s.Judge0AuthToken)
	setIfEmpty(&cfg.Judge.RapidAPIKey, s.RapidAPIKey)
	setIfEmpty(&cfg.Storage.DatabaseURL, s.DatabaseURL)
	setIfEmpty(&cfg.Cache.RedisPassword, s.RedisPassword)
	setIfEmpty(&cfg.Queue.URL, s.RabbitMQURL)

	return nil
}

// Save writes cfg to ~/.skillforge/config.yaml. Credentials are never
// written here.
func Save(cfg *Config) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveSecrets writes credentials to ~/.skillforge/secrets.yaml, owner-only
func SaveSecrets(s *SecretsConfig) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}
