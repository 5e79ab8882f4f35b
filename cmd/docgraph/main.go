// Command docgraph builds a knowledge graph from a parsed document.
//
// Input is a JSON file produced by an upstream parser: the document's plain
// text plus its structural elements. The command runs the extraction
// pipeline, writes the graph to the configured SQLite store, and prints a
// build summary as JSON on stdout.
//
// Usage:
//
//	docgraph --input parsed.json --doc-id report-2024 --level deep
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docgraph/docgraph"
	"github.com/docgraph/docgraph/extract"
	"github.com/docgraph/docgraph/structure"
)

// parsedDocument mirrors the upstream parser's output format.
type parsedDocument struct {
	Text     string              `json:"text"`
	Elements []structure.Element `json:"elements"`
}

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	inputPath := flag.String("input", "", "Path to parsed document JSON (required)")
	docID := flag.String("doc-id", "", "Document ID (required)")
	domainName := flag.String("domain", "", "Domain override (technical, academic, business, legal, general)")
	level := flag.String("level", "standard", "Extraction level: brief, standard, deep")
	force := flag.Bool("force", false, "Delete the document's existing graph before writing")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall build timeout")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if *inputPath == "" || *docID == "" {
		fmt.Fprintln(os.Stderr, "usage: docgraph --input parsed.json --doc-id <id> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := docgraph.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	// Override from environment variables.
	if v := os.Getenv("DOCGRAPH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DOCGRAPH_CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("DOCGRAPH_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("DOCGRAPH_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("DOCGRAPH_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("DOCGRAPH_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("DOCGRAPH_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("DOCGRAPH_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("DOCGRAPH_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	// Fallback: check well-known provider env vars for API keys.
	if cfg.Chat.APIKey == "" && cfg.Chat.Provider == "openai" {
		cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		slog.Error("reading input", "error", err)
		os.Exit(1)
	}
	var doc parsedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Error("parsing input", "error", err)
		os.Exit(1)
	}

	builder, err := docgraph.New(cfg)
	if err != nil {
		slog.Error("creating builder", "error", err)
		os.Exit(1)
	}
	defer builder.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := builder.Build(ctx, docgraph.BuildRequest{
		DocumentID:   *docID,
		Text:         doc.Text,
		Elements:     doc.Elements,
		Domain:       *domainName,
		Level:        extract.Level(*level),
		ForceRebuild: *force,
	})
	if err != nil && !errors.Is(err, docgraph.ErrStoreUnavailable) {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}
	if err != nil {
		// Graph was computed but not persisted; still print it.
		slog.Error("graph store write failed", "error", err)
	}

	summary := struct {
		BuildID    string                  `json:"build_id"`
		DocumentID string                  `json:"document_id"`
		Domain     string                  `json:"domain"`
		Level      string                  `json:"level"`
		Status     string                  `json:"status"`
		Chunks     int                     `json:"chunks"`
		Nodes      int                     `json:"nodes"`
		Edges      int                     `json:"edges"`
		Failures   []docgraph.ChunkFailure `json:"failures,omitempty"`
	}{
		BuildID:    result.BuildID,
		DocumentID: result.DocumentID,
		Domain:     result.Domain,
		Level:      string(result.Level),
		Status:     result.Status,
		Chunks:     result.Chunks,
		Nodes:      len(result.Nodes),
		Edges:      len(result.Edges),
		Failures:   result.Failures,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		slog.Error("encoding summary", "error", err)
		os.Exit(1)
	}
	if err != nil || result.Status != docgraph.StatusComplete {
		os.Exit(1)
	}
}
