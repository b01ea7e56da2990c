package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderREST  = "rest"
	ProviderGenAI = "genai"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"

	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-pro"
)

var (
	ErrMissingAPIKey = errors.New("AI_API_KEYS environment variable is not set")
)

type Config struct {
	APIKey   string
	Provider string
	BaseURL  string
	Model    string

	HTTP    HTTPConfig
	Log     LogConfig
	Metrics MetricsConfig
}

type HTTPConfig struct {
	ClientTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	ListenAddr string
	Path       string
	HealthPath string
}

// Load reads the optional env file first; variables already present in the
// process environment take precedence over it.
func Load() (*Config, error) {
	envFile := mustEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %q: %w", envFile, err)
	}

	cfg := &Config{
		APIKey:   mustEnv("AI_API_KEYS", ""),
		Provider: strings.ToLower(mustEnv("AI_PROVIDER", ProviderREST)),
		BaseURL:  mustEnv("AI_BASE_URL", DefaultBaseURL),
		Model:    mustEnv("AI_MODEL", DefaultModel),
		HTTP: HTTPConfig{
			ClientTimeout: mustDuration("HTTP_TIMEOUT", 60*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(mustEnv("LOG_LEVEL", "warn")),
			Format: strings.ToLower(mustEnv("LOG_FORMAT", LogFormatConsole)),
		},
		Metrics: MetricsConfig{
			ListenAddr: mustEnv("METRICS_ADDR", ""),
			Path:       mustEnv("METRICS_PATH", "/metrics"),
			HealthPath: mustEnv("HEALTH_PATH", "/healthz"),
		},
	}

	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Provider != ProviderREST && cfg.Provider != ProviderGenAI {
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", cfg.Provider)
	}
	if cfg.Log.Format != LogFormatConsole && cfg.Log.Format != LogFormatJSON {
		return nil, fmt.Errorf("unsupported LOG_FORMAT %q", cfg.Log.Format)
	}
	if cfg.HTTP.ClientTimeout < 0 {
		cfg.HTTP.ClientTimeout = 0
	}

	return cfg, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
