package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string
	// Retention purges stored components older than this; 0 keeps everything.
	Retention time.Duration

	DetectEngine   string
	ValidateEngine string
	EnrichEngine   string
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string

	DetectConcurrency   int
	ValidateConcurrency int
	EnrichConcurrency   int
	DetectRPS           float64
	PipelineTimeout     time.Duration

	BorderWidth int
	BorderColor string
	LLMMaxSide  int

	StorageURL    string
	StorageKey    string
	StorageBucket string
	URLCacheSize  int
	URLCacheTTL   time.Duration

	TelegramBotToken string
	TelegramChatID   int64
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("config: bad %s=%q, using %d", k, v, def)
	}
	return def
}

func getInt64(k string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("config: bad %s=%q, using %d", k, v, def)
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("config: bad %s=%q, using %g", k, v, def)
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("config: bad %s=%q, using %s", k, v, def)
	}
	return def
}

// Load reads optional settings only; commands that need a key check it with Require.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		Retention:   getDuration("RETENTION", 0),

		DetectEngine:   getEnv("DETECT_ENGINE", "gemini"),
		ValidateEngine: getEnv("VALIDATE_ENGINE", "gemini"),
		EnrichEngine:   getEnv("ENRICH_ENGINE", "gemini"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4.1-mini"),

		DetectConcurrency:   getInt("DETECT_CONCURRENCY", 8),
		ValidateConcurrency: getInt("VALIDATE_CONCURRENCY", 5),
		EnrichConcurrency:   getInt("ENRICH_CONCURRENCY", 5),
		DetectRPS:           getFloat("DETECT_RPS", 0),
		PipelineTimeout:     getDuration("PIPELINE_TIMEOUT", 0),

		BorderWidth: getInt("BORDER_WIDTH", 2),
		BorderColor: getEnv("BORDER_COLOR", ""),
		LLMMaxSide:  getInt("LLM_MAX_SIDE", 2048),

		StorageURL:    getEnv("STORAGE_URL", ""),
		StorageKey:    getEnv("STORAGE_KEY", ""),
		StorageBucket: getEnv("STORAGE_BUCKET", "screenshots"),
		URLCacheSize:  getInt("URL_CACHE_SIZE", 512),
		URLCacheTTL:   getDuration("URL_CACHE_TTL", 50*time.Minute),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getInt64("TELEGRAM_CHAT_ID", 0),
	}
}

// Require aborts when any of the listed env keys is unset.
func Require(keys ...string) {
	for _, k := range keys {
		mustEnv(k)
	}
}
