package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/skillforge/internal/config"
)

// cmdConfig prints the effective configuration without credentials
func cmdConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, _ := config.Dir()

	fmt.Printf("Config dir:     %s\n\n", dir)
	fmt.Println("Server")
	fmt.Printf("  address:      %s\n", cfg.Addr())
	fmt.Printf("  log level:    %s\n", cfg.Server.LogLevel)
	fmt.Printf("  rate limit:   %d/s\n", cfg.Server.RateLimitPerSecond)

	fmt.Println("AI")
	fmt.Printf("  provider:     %s\n", cfg.AI.Provider)
	fmt.Printf("  gemini:       %d key(s), models %s, %d rpm per key\n",
		len(cfg.AI.Gemini.Keys), strings.Join(cfg.AI.Gemini.Models, ","), cfg.AI.Gemini.RequestsPerMinute)
	fmt.Printf("  groq:         %d key(s), model %s\n", len(cfg.AI.Groq.Keys), cfg.AI.Groq.Model)

	fmt.Println("Judge")
	fmt.Printf("  backend:      %s\n", cfg.Judge.Backend)
	if cfg.Judge.Backend == "docker" {
		fmt.Printf("  limits:       %dMB, %.1f cpu\n", cfg.Judge.Docker.MemoryMB, cfg.Judge.Docker.CPULimit)
	} else {
		fmt.Printf("  url:          %s\n", cfg.Judge.URL)
		fmt.Printf("  auth:         %s\n", configured(cfg.Judge.AuthToken != "" || cfg.Judge.RapidAPIKey != ""))
	}

	fmt.Println("Storage")
	fmt.Printf("  driver:       %s\n", cfg.Storage.Driver)
	if cfg.Storage.Driver == "postgres" {
		fmt.Printf("  database:     %s\n", configured(cfg.Storage.DatabaseURL != ""))
	} else {
		fmt.Printf("  path:         %s\n", cfg.Storage.SQLitePath)
	}

	fmt.Println("Cache")
	if cfg.Cache.RedisAddr != "" {
		fmt.Printf("  redis:        %s\n", cfg.Cache.RedisAddr)
	} else {
		fmt.Println("  backend:      memory")
	}
	fmt.Printf("  ttl:          %s\n", cfg.Cache.TTL)

	fmt.Println("Queue")
	fmt.Printf("  broker:       %s\n", configured(cfg.Queue.URL != ""))
	fmt.Printf("  workers:      %d\n", cfg.Queue.Workers)
	return nil
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

// cmdSetKey adds an API key to a provider's pool in secrets.yaml
func cmdSetKey(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: skillforge set-key <gemini|groq> <key>")
	}
	provider, key := args[0], strings.TrimSpace(args[1])
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	secrets, err := readSecrets()
	if err != nil {
		return err
	}

	var pool *[]string
	switch provider {
	case "gemini":
		pool = &secrets.GeminiKeys
	case "groq":
		pool = &secrets.GroqKeys
	default:
		return fmt.Errorf("unknown provider %q (want gemini or groq)", provider)
	}

	if slices.Contains(*pool, key) {
		fmt.Printf("Key already in the %s pool (%d key(s))\n", provider, len(*pool))
		return nil
	}
	*pool = append(*pool, key)

	if err := config.SaveSecrets(secrets); err != nil {
		return err
	}
	fmt.Printf("✓ Added %s key %s (%d key(s) in pool)\n", provider, maskKey(key), len(*pool))
	fmt.Println("Restart the daemon to pick it up.")
	return nil
}

func readSecrets() (*config.SecretsConfig, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	var s config.SecretsConfig
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if os.IsNotExist(err) {
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	return &s, nil
}

// maskKey keeps the last four characters
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
