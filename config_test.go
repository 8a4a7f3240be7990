package proplens

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals window", func(c *Config) { c.ChunkOverlap = c.ChunkWindow }},
		{"overlap exceeds window", func(c *Config) { c.ChunkOverlap = c.ChunkWindow + 1 }},
		{"unknown retrieval mode", func(c *Config) { c.RetrievalMode = "keyword" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("validate = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proplens.yaml")
	yaml := `
db_path: /tmp/tasks.db
chunk_window: 800
chunk_overlap: 80
retrieval_mode: vector
chat:
  provider: custom
  model: local-model
  base_url: http://localhost:8080
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ChunkWindow != 800 || cfg.ChunkOverlap != 80 {
		t.Errorf("chunking = %d/%d", cfg.ChunkWindow, cfg.ChunkOverlap)
	}
	if cfg.RetrievalMode != "vector" {
		t.Errorf("RetrievalMode = %q", cfg.RetrievalMode)
	}
	if cfg.Chat.Model != "local-model" {
		t.Errorf("Chat.Model = %q", cfg.Chat.Model)
	}
	// Unset fields keep defaults.
	if cfg.MaxResults != 10 {
		t.Errorf("MaxResults = %d, want default 10", cfg.MaxResults)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ChunkWindow != 1000 {
		t.Errorf("ChunkWindow = %d, want default", cfg.ChunkWindow)
	}
}

func TestLoadConfigEnvKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Chat.APIKey != "sk-env" || cfg.Embedding.APIKey != "sk-env" {
		t.Errorf("APIKey fallback not applied: %q / %q", cfg.Chat.APIKey, cfg.Embedding.APIKey)
	}
}
