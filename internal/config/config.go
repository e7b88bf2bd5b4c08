package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the chat gateway.
type Config struct {
	Port       string
	OpenAI     OpenAIConfig
	RateLimit  RateLimitConfig
	Pipeline   PipelineConfig
	Guardrails GuardrailsConfig
	Messenger  MessengerConfig
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type RateLimitConfig struct {
	// Store selects the backing store: "memory", "redis" or "postgres".
	Store       string
	Window      time.Duration
	MaxRequests int
	RedisAddr   string
	DatabaseURL string
}

type PipelineConfig struct {
	Deadline    time.Duration
	RetryBudget int
	BackoffBase time.Duration
}

type GuardrailsConfig struct {
	Enabled bool
	// MaskPII enables mask-only PII scrubbing of history and workflow
	// fields instead of blocking on detection.
	MaskPII            bool
	JailbreakThreshold float64
	ModerationEnabled  bool
}

type MessengerConfig struct {
	VerifyToken     string
	PageAccessToken string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port: envStr("PORT", "8080"),
		OpenAI: OpenAIConfig{
			APIKey: envStr("OPENAI_API_KEY", ""),
			Model:  envStr("OPENAI_MODEL", ""),
		},
		RateLimit: RateLimitConfig{
			Store:       envStr("RATE_LIMIT_STORE", "memory"),
			Window:      envDur("RATE_LIMIT_WINDOW", time.Minute),
			MaxRequests: envInt("RATE_LIMIT_MAX_REQUESTS", 20),
			RedisAddr:   envStr("REDIS_ADDR", "localhost:6379"),
			DatabaseURL: envStr("DATABASE_URL", ""),
		},
		Pipeline: PipelineConfig{
			Deadline:    envDur("PIPELINE_DEADLINE", 9*time.Second),
			RetryBudget: envInt("PIPELINE_RETRY_BUDGET", 2),
			BackoffBase: envDur("PIPELINE_BACKOFF_BASE", 500*time.Millisecond),
		},
		Guardrails: GuardrailsConfig{
			Enabled:            envBool("GUARDRAILS_ENABLED", true),
			MaskPII:            envBool("GUARDRAILS_MASK_PII", false),
			JailbreakThreshold: envFloat("GUARDRAILS_JAILBREAK_THRESHOLD", 0.7),
			ModerationEnabled:  envBool("GUARDRAILS_MODERATION", false),
		},
		Messenger: MessengerConfig{
			VerifyToken:     envStr("FB_VERIFY_TOKEN", ""),
			PageAccessToken: envStr("FB_PAGE_ACCESS_TOKEN", ""),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
