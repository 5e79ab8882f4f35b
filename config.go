package docgraph

import (
	"os"
	"path/filepath"

	"github.com/docgraph/docgraph/llm"
)

// Config holds all configuration for the docgraph builder.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.docgraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "docgraph".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is not
	// explicitly set. Options: "home" (default) uses ~/.docgraph/, "local"
	// uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Chat is the language model used for entity and relationship
	// extraction.
	Chat llm.Config `json:"chat" yaml:"chat"`

	// Embedding optionally configures an embedding model. When set together
	// with EmbedEntities, entity labels are embedded and indexed for
	// similarity lookup.
	Embedding llm.Config `json:"embedding" yaml:"embedding"`

	// MaxChunkTokens is the per-chunk token budget (default 8000). A build
	// request may override it.
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`

	// Concurrency bounds how many chunks are extracted in parallel. This is
	// admission control against the model backend (default 8).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Retries is the per-model-call retry budget for malformed responses
	// and timeouts (default 2).
	Retries int `json:"retries" yaml:"retries"`

	// EmbedEntities enables entity-label embeddings in the store.
	EmbedEntities bool `json:"embed_entities" yaml:"embed_entities"`

	// EmbeddingDim must match the embedding model (default 768).
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.docgraph/docgraph.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "docgraph",
		StorageDir: "home",
		Chat: llm.Config{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: llm.Config{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		MaxChunkTokens: 8000,
		Concurrency:    8,
		Retries:        2,
		EmbeddingDim:   768,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "docgraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".docgraph")
		return filepath.Join(dir, name+".db")
	}
}
