package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AllowedOrigin string
	// Inference/RAG backend
	BackendURL     string
	BackendTimeout time.Duration
	// Direct Whisper transcription fallback
	OpenAIAPIKey string
	STTModel     string
	// Static drug catalog document
	CatalogFile string
	// Mode-aware starter prompts
	SuggestionsFile string
	// Per-session turn cap
	MaxTurns int
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:            getEnvDefault("PORT", "8080"),
		AllowedOrigin:   getEnvDefault("ALLOWED_ORIGIN", "*"),
		BackendURL:      getEnvDefault("BACKEND_URL", "http://localhost:5000"),
		BackendTimeout:  getEnvDurationDefault("BACKEND_TIMEOUT", 60*time.Second),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		STTModel:        getEnvDefault("OPENAI_STT_MODEL", "whisper-1"),
		CatalogFile:     getEnvDefault("CATALOG_FILE", "data/drugs_master.json"),
		SuggestionsFile: getEnvDefault("SUGGESTIONS_FILE", "prompts/suggestions.yaml"),
		MaxTurns:        getEnvIntDefault("MAX_TURNS", 40),
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("warning: OPENAI_API_KEY is not set; direct transcription fallback is disabled")
	}
	return cfg
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return def
}
