package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/impact-solutions/chat-gateway/internal/ai"
	"github.com/impact-solutions/chat-gateway/internal/chat"
	"github.com/impact-solutions/chat-gateway/internal/config"
	"github.com/impact-solutions/chat-gateway/internal/guardrails"
	"github.com/impact-solutions/chat-gateway/internal/httpmw"
	"github.com/impact-solutions/chat-gateway/internal/messenger"
	"github.com/impact-solutions/chat-gateway/internal/ratelimit"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("APP_ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if cfg.OpenAI.APIKey == "" {
		log.Fatal().Msg("OPENAI_API_KEY is not set")
	}

	// --- Rate-limit store ---
	store := buildRateLimitStore(cfg)
	limiter := ratelimit.New(store, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)

	// --- Pipeline wiring ---
	aiClient := ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)

	var screen chat.SafetyScreen
	if cfg.Guardrails.Enabled {
		rules := guardrails.DefaultRules(
			cfg.Guardrails.JailbreakThreshold,
			cfg.Guardrails.ModerationEnabled,
			cfg.Guardrails.MaskPII,
		)
		screen = guardrails.NewScreen(rules, aiClient, aiClient)
	}

	classifier := chat.NewClassifier(aiClient, true)
	registry := chat.NewRegistry()
	svc := chat.NewService(aiClient, screen, classifier, registry, chat.ServiceConfig{
		Deadline:    cfg.Pipeline.Deadline,
		RetryBudget: cfg.Pipeline.RetryBudget,
		BackoffBase: cfg.Pipeline.BackoffBase,
	})

	chatHandler := chat.NewHandler(svc, limiter)
	msgHandler := messenger.NewHandler(
		svc,
		messenger.NewGraphOutbound(cfg.Messenger.PageAccessToken),
		cfg.Messenger.VerifyToken,
	)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(httpmw.RequestID)
	r.Use(httpmw.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	chat.RegisterRoutes(r, chatHandler)
	messenger.RegisterRoutes(r, msgHandler)

	// --- health ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	log.Info().Str("port", cfg.Port).Str("rate_limit_store", cfg.RateLimit.Store).Msg("listening")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func buildRateLimitStore(cfg *config.Config) ratelimit.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch cfg.RateLimit.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis ping error")
		}
		return ratelimit.NewRedisStore(client)
	case "postgres":
		if cfg.RateLimit.DatabaseURL == "" {
			log.Fatal().Msg("DATABASE_URL is not set")
		}
		db, err := sql.Open("postgres", cfg.RateLimit.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("db open error")
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("db ping error")
		}
		store := ratelimit.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("rate limit schema error")
		}
		return store
	default:
		return ratelimit.NewMemoryStore()
	}
}
