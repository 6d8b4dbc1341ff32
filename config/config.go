// Package config loads the hawat process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dslachut/hawat/llm"
	"github.com/dslachut/hawat/memory"
	"github.com/dslachut/hawat/memory/store/postgres"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Embedders.
const (
	EmbedderONNX   = "onnx"
	EmbedderRemote = "remote"
	EmbedderMock   = "mock"
)

// DefaultOpenAIChatModel is the OpenRouter model used when OPENAI_CHAT_MODEL
// is unset.
const DefaultOpenAIChatModel = "deepseek/deepseek-r1-0528:free"

// Config is the full process configuration.
type Config struct {
	DBDriver   string
	Postgres   postgres.Config
	SQLitePath string

	Memory memory.Config

	LLMProvider     string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	OpenAIChatModel string
	AnthropicAPIKey string
	AnthropicModel  string

	Embedder          string
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	ONNXModelPath     string
	ONNXTokenizerPath string
	ONNXLibraryPath   string
	EmbedCacheEnabled bool

	GRPCAddr string
	HTTPAddr string
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment without touching .env.
func FromEnv() (*Config, error) {
	r := &reader{}
	cfg := &Config{
		DBDriver: strings.ToLower(r.str("DB_DRIVER", DriverPostgres)),
		Postgres: postgres.Config{
			Host:     r.str("DB_HOST", "localhost"),
			Port:     r.str("DB_PORT", "5431"),
			User:     r.str("DB_USER", "hawat"),
			Password: r.str("DB_PASSWORD", ""),
			Name:     r.str("DB_NAME", "hawat"),
			SSLMode:  r.str("DB_SSLMODE", "disable"),
		},
		SQLitePath: r.str("SQLITE_PATH", "hawat.db"),

		Memory: memory.Config{
			RecencyWindow:        r.minutes("CONTEXT_TIME_WINDOW_MINUTES", 5),
			SimilarMessages:      r.integer("TOP_K_SIMILAR_MESSAGES", 3),
			RelatedConversations: r.integer("TOP_K_RELATED_CONVERSATIONS", 3),
			IdleThreshold:        r.minutes("CONVO_THRESHOLD_MINUTES", 30),
			ReflectionInterval:   time.Duration(r.integer("REFLECTION_INTERVAL_SECONDS", 60)) * time.Second,
		},

		LLMProvider:     strings.ToLower(r.str("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIBaseURL:   r.str("OPENAI_API_BASE", llm.DefaultOpenAIBaseURL),
		OpenAIAPIKey:    r.str("OPENAI_API_KEY", ""),
		OpenAIChatModel: r.str("OPENAI_CHAT_MODEL", DefaultOpenAIChatModel),
		AnthropicAPIKey: r.str("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  r.str("ANTHROPIC_MODEL", llm.DefaultAnthropicModel),

		Embedder:          strings.ToLower(r.str("EMBEDDER", EmbedderONNX)),
		EmbeddingBaseURL:  r.str("EMBEDDING_API_BASE", ""),
		EmbeddingAPIKey:   r.str("EMBEDDING_API_KEY", ""),
		EmbeddingModel:    r.str("EMBEDDING_MODEL", ""),
		ONNXModelPath:     r.str("ONNX_MODEL_PATH", "models/all-MiniLM-L6-v2.onnx"),
		ONNXTokenizerPath: r.str("ONNX_TOKENIZER_PATH", "models/tokenizer.json"),
		ONNXLibraryPath:   r.str("ONNX_LIBRARY_PATH", ""),
		EmbedCacheEnabled: r.boolean("EMBED_CACHE_ENABLED", true),

		GRPCAddr: r.str("GRPC_ADDR", ":50051"),
		HTTPAddr: r.str("HTTP_ADDR", ":8080"),
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER: unknown driver %q", c.DBDriver)
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("LLM_PROVIDER: unknown provider %q", c.LLMProvider)
	}
	switch c.Embedder {
	case EmbedderONNX, EmbedderRemote, EmbedderMock:
	default:
		return fmt.Errorf("EMBEDDER: unknown embedder %q", c.Embedder)
	}
	return nil
}

// reader collects the first parse error.
type reader struct {
	err error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		if r.err == nil {
			r.err = fmt.Errorf("%s: expected a positive integer, got %q", key, v)
		}
		return def
	}
	return n
}

func (r *reader) minutes(key string, def int) time.Duration {
	return time.Duration(r.integer(key, def)) * time.Minute
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%s: expected a boolean, got %q", key, v)
		}
		return def
	}
	return b
}
