package proplens

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abarelabs/proplens/llm"
)

// Config holds all configuration for the proplens engine.
type Config struct {
	// DBPath is the path to the SQLite file backing task records.
	// Empty selects an in-memory task store.
	DBPath string `json:"db_path" yaml:"db_path"`

	// LLM collaborators
	Chat      llm.Config `json:"chat" yaml:"chat"`
	Embedding llm.Config `json:"embedding" yaml:"embedding"`

	// Segmentation
	ChunkWindow  int `json:"chunk_window" yaml:"chunk_window"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Retrieval
	RetrievalMode string `json:"retrieval_mode" yaml:"retrieval_mode"` // vector, graph, hybrid
	MaxResults    int    `json:"max_results" yaml:"max_results"`

	// Answer synthesis
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	MaxAnswerTokens int     `json:"max_answer_tokens" yaml:"max_answer_tokens"`

	// Market context cache
	MarketCacheSize int           `json:"market_cache_size" yaml:"market_cache_size"`
	MarketCacheTTL  time.Duration `json:"market_cache_ttl" yaml:"market_cache_ttl"`

	// Task queue
	IngestConcurrency int    `json:"ingest_concurrency" yaml:"ingest_concurrency"`
	TaskRetentionDays int    `json:"task_retention_days" yaml:"task_retention_days"`
	CleanupSpec       string `json:"cleanup_spec" yaml:"cleanup_spec"` // cron spec, empty disables
}

// DefaultConfig returns a Config with sensible defaults for local inference.
func DefaultConfig() Config {
	return Config{
		Chat: llm.Config{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Embedding: llm.Config{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		ChunkWindow:       1000,
		ChunkOverlap:      100,
		RetrievalMode:     "hybrid",
		MaxResults:        10,
		Temperature:       0.3,
		MaxAnswerTokens:   1000,
		MarketCacheSize:   128,
		MarketCacheTTL:    6 * time.Hour,
		IngestConcurrency: 1,
		TaskRetentionDays: 7,
		CleanupSpec:       "0 3 * * *",
	}
}

// LoadConfig reads a YAML config file, layering it over DefaultConfig.
// A .env file in the working directory is loaded first so API keys can be
// kept out of the config file; empty api_key fields fall back to the
// OPENAI_API_KEY environment variable.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvKeys(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	applyEnvKeys(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvKeys(cfg *Config) {
	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func (c *Config) validate() error {
	if c.ChunkOverlap >= c.ChunkWindow {
		return fmt.Errorf("%w: chunk_overlap (%d) must be less than chunk_window (%d)",
			ErrInvalidConfig, c.ChunkOverlap, c.ChunkWindow)
	}
	switch c.RetrievalMode {
	case "vector", "graph", "hybrid":
	default:
		return fmt.Errorf("%w: unknown retrieval_mode %q", ErrInvalidConfig, c.RetrievalMode)
	}
	return nil
}
