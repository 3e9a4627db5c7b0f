package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string // "dev" or "prod"

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int

	VectorBackend string // "postgres" or "sqlite"
	DatabaseURL   string

	GhostBaseURL string
	GhostAPIKey  string
	PostsDir     string

	// GhostWebhookSecret verifies X-Ghost-Signature on /webhooks/ghost.
	GhostWebhookSecret string

	// Ghost calls keep their own retry count and first delay; RetryMaxDelay
	// still caps them.
	GhostRetryMax       int
	GhostRetryBaseDelay time.Duration
	GhostPageSize       int // 0 keeps Ghost's default

	// SyncRequeueInterval is how often dead sync jobs go back on the queue;
	// zero disables it. A job is requeued at most SyncMaxRequeues times.
	SyncRequeueInterval time.Duration
	SyncMaxRequeues     int

	RetryMaxRetries int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration

	IngestConcurrency int
	IngestRate        float64

	SearchTimeout     time.Duration
	CompletionTimeout time.Duration
	RequestTimeout    time.Duration

	PromptFile   string
	OTelExporter string // "none", "stdout", "otlp-http", "otlp-grpc"

	RateLimitPerMinute int
	CORSAllowedOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "3000"),
		Env:  getEnv("APP_ENV", "dev"),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-large"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 3072),

		VectorBackend: getEnv("VECTOR_BACKEND", "postgres"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		GhostBaseURL: getEnv("GHOST_BASE_URL", "https://guide.anotherclass.co.kr"),
		GhostAPIKey:  os.Getenv("GHOST_CMS_CONTENT_API_KEY"),
		PostsDir:     getEnv("POSTS_DIR", "posts"),

		GhostWebhookSecret: os.Getenv("GHOST_WEBHOOK_SECRET"),

		GhostRetryMax:       getEnvInt("GHOST_RETRY_MAX", 5),
		GhostRetryBaseDelay: getEnvDuration("GHOST_RETRY_BASE_DELAY", 2*time.Second),
		GhostPageSize:       getEnvInt("GHOST_PAGE_SIZE", 0),

		SyncRequeueInterval: getEnvDuration("SYNC_REQUEUE_INTERVAL", 5*time.Minute),
		SyncMaxRequeues:     getEnvInt("SYNC_MAX_REQUEUES", 3),

		RetryMaxRetries: getEnvInt("RETRY_MAX", 3),
		RetryBaseDelay:  getEnvDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:   getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),

		IngestConcurrency: getEnvInt("INGEST_CONCURRENCY", 4),
		IngestRate:        getEnvFloat("INGEST_RATE", 2),

		SearchTimeout:     getEnvDuration("SEARCH_TIMEOUT", 5*time.Second),
		CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 90*time.Second),

		PromptFile:   os.Getenv("PROMPT_FILE"),
		OTelExporter: getEnv("OTEL_EXPORTER", "none"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	// Validação Estrita para Produção
	if cfg.Env == "prod" {
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("produção: OPENAI_API_KEY é obrigatório")
		}
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("produção: DATABASE_URL é obrigatório")
		}
	} else if cfg.DatabaseURL == "" && cfg.VectorBackend == "sqlite" {
		cfg.DatabaseURL = "./guidebot.db"
	}

	switch cfg.VectorBackend {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("VECTOR_BACKEND inválido: %q", cfg.VectorBackend)
	}

	if cfg.IngestConcurrency < 1 {
		cfg.IngestConcurrency = 1
	}

	return cfg, nil
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration accepts Go durations ("2s") or bare milliseconds ("2000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
