package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseConfig = `
port: "8080"
jwtSecret: "0123456789abcdef0123456789abcdef"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("storeBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.GenerationProvider != "gemini" {
		t.Fatalf("generationProvider = %q, want gemini", cfg.GenerationProvider)
	}
	if Duration(cfg.GenerationTimeout) != 30*time.Second {
		t.Fatalf("generationTimeout = %q, want 30s", cfg.GenerationTimeout)
	}
	if cfg.EventsBackend != "none" || cfg.TrendCache != "memory" {
		t.Fatalf("unexpected backends: events=%q cache=%q", cfg.EventsBackend, cfg.TrendCache)
	}
	if cfg.ChatHistory != 10 {
		t.Fatalf("chatHistory = %d, want 10", cfg.ChatHistory)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERPAPI_KEY", "serp-key")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/trendscribe?sslmode=disable")
	t.Setenv("TRENDSCRIBE_STORE_BACKEND", "postgres")
	t.Setenv("TRENDSCRIBE_TREND_WINDOW_HOURS", "48")
	t.Setenv("TRENDSCRIBE_RERANK_ENABLED", "true")
	t.Setenv("TRENDSCRIBE_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SerpAPIKey != "serp-key" {
		t.Fatalf("serpapiKey = %q", cfg.SerpAPIKey)
	}
	if cfg.StoreBackend != "postgres" || !strings.HasPrefix(cfg.DatabaseURL, "postgres://") {
		t.Fatalf("unexpected store config: %q %q", cfg.StoreBackend, cfg.DatabaseURL)
	}
	if cfg.TrendWindowHours != 48 {
		t.Fatalf("trendWindowHours = %d, want 48", cfg.TrendWindowHours)
	}
	if !cfg.RerankEnabled {
		t.Fatalf("rerankEnabled = false, want true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("corsAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	valid := FileConfig{Port: "8080", JWTSecret: strings.Repeat("x", 32)}
	applyDefaults(&valid)

	tests := []struct {
		name   string
		mutate func(*FileConfig)
		want   string
	}{
		{"missing port", func(c *FileConfig) { c.Port = "" }, "port is required"},
		{"short secret", func(c *FileConfig) { c.JWTSecret = "short" }, "jwtSecret is required"},
		{"postgres without url", func(c *FileConfig) { c.StoreBackend = "postgres" }, "databaseURL is required"},
		{"mongo without uri", func(c *FileConfig) { c.StoreBackend = "mongo" }, "mongoURI is required"},
		{"unknown store", func(c *FileConfig) { c.StoreBackend = "sqlite" }, "storeBackend"},
		{"redis cache without addr", func(c *FileConfig) { c.TrendCache = "redis" }, "redisAddr is required"},
		{"rate limit without redis", func(c *FileConfig) { c.GenerateRateLimitPerMinute = 10 }, "distributed rate limiting"},
		{"negative rate limit", func(c *FileConfig) { c.TrendsRateLimitPerMinute = -1 }, "rate limits must be >= 0"},
		{"amqp without url", func(c *FileConfig) { c.EventsBackend = "amqp" }, "amqpURL is required"},
		{"bad duration", func(c *FileConfig) { c.StaleAfter = "soon" }, "invalid staleAfter duration"},
		{"unknown provider", func(c *FileConfig) { c.GenerationProvider = "bard" }, "generationProvider"},
		{"topN above cap", func(c *FileConfig) { c.TrendTopN = 10 }, "trendTopN must be <= 5"},
		{"negative chat history", func(c *FileConfig) { c.ChatHistory = -1 }, "chatHistory must be >= 0"},
	}
	if err := validateConfig(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := validateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
