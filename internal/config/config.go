package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port           string   `env:"PORT" envDefault:"8080"`
	Env            string   `env:"ENV" envDefault:"development"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Redis
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Auth
	JWTSecret    string `env:"JWT_SECRET,required,notEmpty"`
	JWTAudience  string `env:"JWT_AUDIENCE"`
	AdminKeyHash string `env:"ADMIN_KEY_HASH"`

	// Model provider
	LLMProvider      string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	LLMTemperature   float32       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxTokens     int           `env:"LLM_MAX_TOKENS" envDefault:"4096"`
	LLMStreamTimeout time.Duration `env:"LLM_STREAM_TIMEOUT" envDefault:"90s"`

	// Gemini AI
	GeminiAPIKey         string `env:"GEMINI_API_KEY"`
	GeminiModel          string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiConcurrentReqs int    `env:"GEMINI_CONCURRENT_REQUESTS" envDefault:"5"`

	// OpenAI-compatible
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ModelID       string `env:"MODEL_ID" envDefault:"gpt-5"`

	// Relay
	HistoryMaxTurns  int `env:"HISTORY_MAX_TURNS" envDefault:"20"`
	ContextMaxChars  int `env:"CONTEXT_MAX_CHARS" envDefault:"10000"`
	MessageRateLimit int `env:"MESSAGE_RATE_LIMIT" envDefault:"30"`

	// Storage
	StorageType    string `env:"STORAGE_TYPE" envDefault:"local"`
	StoragePath    string `env:"STORAGE_PATH" envDefault:"./uploads"`
	StorageBucket  string `env:"STORAGE_BUCKET" envDefault:"legal-docs"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`

	// Ingestion
	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"2000"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"200"`
	WorkerCount  int `env:"WORKER_COUNT" envDefault:"5"`
}

// Load reads .env when present, then parses the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.StorageType {
	case "local", "gcs":
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.StorageType)
	}

	if c.HistoryMaxTurns < 0 {
		return fmt.Errorf("HISTORY_MAX_TURNS must not be negative")
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	return nil
}
