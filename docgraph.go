// Package docgraph builds knowledge graphs from parsed documents. A build
// chunks the document text, classifies its domain, runs two-phase LLM
// extraction per chunk (entities, then relationships among them), attributes
// every entity to its structural element, reconciles duplicates, and upserts
// the resulting graph into a SQLite-backed store.
package docgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docgraph/docgraph/chunker"
	"github.com/docgraph/docgraph/domain"
	"github.com/docgraph/docgraph/extract"
	"github.com/docgraph/docgraph/graph"
	"github.com/docgraph/docgraph/llm"
	"github.com/docgraph/docgraph/store"
	"github.com/docgraph/docgraph/structure"
)

// chunkTimeout bounds the model work for a single chunk (both phases
// together). A stuck chunk degrades the build to partial instead of
// hanging it.
const chunkTimeout = 90 * time.Second

// embedBatchSize is how many entity labels are embedded per model call.
const embedBatchSize = 32

// Build statuses.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// Builder is the main entry point. Create one with New, reuse it across
// documents, and Close it when done.
type Builder struct {
	cfg   Config
	store *store.Store
	chat  llm.Provider
	embed llm.Provider
}

// BuildRequest describes one document to build a graph for.
type BuildRequest struct {
	// DocumentID identifies the document in the store. Required.
	DocumentID string `json:"document_id"`

	// Text is the full plain text of the document. Required.
	Text string `json:"text"`

	// Elements is the structural element list produced by an upstream
	// parser (document root, sections, tables, images, lists). Optional;
	// when empty a single document root spanning the full text is assumed.
	Elements []structure.Element `json:"elements,omitempty"`

	// Domain overrides automatic domain classification when it names a
	// known domain schema.
	Domain string `json:"domain,omitempty"`

	// Level selects extraction depth: brief, standard (default), or deep.
	Level extract.Level `json:"level,omitempty"`

	// MaxChunkTokens overrides the configured per-chunk token budget.
	MaxChunkTokens int `json:"max_chunk_tokens,omitempty"`

	// ForceRebuild deletes the document's existing graph before writing
	// the new one, in a single transaction.
	ForceRebuild bool `json:"force_rebuild,omitempty"`

	// Timeout bounds the whole build. Zero means no overall deadline
	// (per-chunk timeouts still apply).
	Timeout time.Duration `json:"timeout,omitempty"`
}

// ChunkFailure records a chunk whose extraction did not complete. The rest
// of the document is unaffected.
type ChunkFailure struct {
	ChunkIndex int    `json:"chunk_index"`
	Phase      string `json:"phase"` // "entities" or "relationships"
	Err        string `json:"error"`
}

// BuildResult is the outcome of a build. When Status is "partial", Failures
// lists the chunks that were skipped; the graph covers everything else.
type BuildResult struct {
	BuildID    string         `json:"build_id"`
	DocumentID string         `json:"document_id"`
	Domain     string         `json:"domain"`
	Level      extract.Level  `json:"level"`
	Status     string         `json:"status"`
	Chunks     int            `json:"chunks"`
	Nodes      []graph.Node   `json:"nodes"`
	Edges      []graph.Edge   `json:"edges"`
	Failures   []ChunkFailure `json:"failures,omitempty"`
}

// New creates a Builder from configuration, opening the graph store and the
// configured model providers.
func New(cfg Config) (*Builder, error) {
	chat, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("chat provider: %w", err)
	}

	var embed llm.Provider
	if cfg.EmbedEntities {
		embed, err = llm.NewProvider(cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
	}

	return NewWithProviders(cfg, chat, embed)
}

// NewWithProviders creates a Builder with explicit providers. embed may be
// nil to disable entity embeddings.
func NewWithProviders(cfg Config, chat llm.Provider, embed llm.Provider) (*Builder, error) {
	if chat == nil {
		return nil, fmt.Errorf("%w: chat provider is required", ErrInvalidRequest)
	}
	if cfg.MaxChunkTokens <= 0 {
		cfg.MaxChunkTokens = chunker.DefaultMaxTokens
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Retries <= 0 {
		cfg.Retries = extract.DefaultRetries
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = store.DefaultEmbeddingDim
	}

	st, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	return &Builder{cfg: cfg, store: st, chat: chat, embed: embed}, nil
}

// Store exposes the underlying graph store for reads (DocumentGraph,
// SimilarEntities) and maintenance (DeleteDocument).
func (b *Builder) Store() *store.Store { return b.store }

// Close releases the store connection.
func (b *Builder) Close() error { return b.store.Close() }

// Build runs the full pipeline for one document and writes the graph to the
// store. If the store write fails, the computed result is still returned
// together with an error wrapping ErrStoreUnavailable; pass the result to
// Write to retry without re-running extraction.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrInvalidRequest)
	}
	level := req.Level
	if level == "" {
		level = extract.LevelStandard
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown extraction level %q", ErrInvalidRequest, req.Level)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	tree, err := b.buildTree(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	maxTokens := req.MaxChunkTokens
	if maxTokens <= 0 {
		maxTokens = b.cfg.MaxChunkTokens
	}
	chunks, err := chunker.New(chunker.Config{MaxTokens: maxTokens}).Split(req.Text)
	if err != nil {
		return nil, err
	}

	domainName := req.Domain
	if !domain.Known(domainName) {
		if domainName != "" {
			slog.Warn("unknown domain, classifying instead", "requested", req.Domain)
		}
		domainName = domain.Classify(req.Text)
	}
	schema := domain.Get(domainName)

	slog.Info("build started",
		"document", req.DocumentID,
		"domain", domainName,
		"level", string(level),
		"chunks", len(chunks))

	entities, triples, failures := b.extractAll(ctx, req.Text, chunks, schema, level)

	// Attribute each entity to its deepest containing structural element
	// before identity is computed; entity IDs are scoped to the element.
	grafter := structure.NewGrafter(tree, chunks)
	grafter.Attribute(entities)

	nodes, edges := graph.NewReconciler(domainName).Reconcile(entities, triples)
	entityNodes := nodes

	nodes = append(nodes, grafter.Nodes()...)
	edges = append(edges, grafter.ContainmentEdges()...)
	edges = append(edges, grafter.MentionEdges(entityNodes)...)
	edges = filterDangling(nodes, edges)

	result := &BuildResult{
		BuildID:    uuid.NewString(),
		DocumentID: req.DocumentID,
		Domain:     domainName,
		Level:      level,
		Status:     StatusComplete,
		Chunks:     len(chunks),
		Nodes:      nodes,
		Edges:      edges,
		Failures:   failures,
	}
	if len(failures) > 0 {
		result.Status = StatusPartial
	}

	if err := b.Write(ctx, result, req.ForceRebuild); err != nil {
		return result, err
	}

	slog.Info("build finished",
		"document", req.DocumentID,
		"status", result.Status,
		"nodes", len(nodes),
		"edges", len(edges),
		"failed_chunks", len(failures))
	return result, nil
}

// Write persists a previously computed build result. It is the retry path
// for builds that returned ErrStoreUnavailable.
func (b *Builder) Write(ctx context.Context, res *BuildResult, force bool) error {
	embeddings := b.embedEntities(ctx, res.Nodes)
	return b.store.UpsertGraph(ctx, res.DocumentID, res.BuildID, res.Domain,
		res.Nodes, res.Edges, embeddings, force)
}

// buildTree validates the request's structural elements, synthesizing a
// document root when none were provided.
func (b *Builder) buildTree(req BuildRequest) (*structure.Tree, error) {
	elements := req.Elements
	if len(elements) == 0 {
		elements = []structure.Element{{
			ID:    req.DocumentID + "/document",
			Type:  structure.TypeDocument,
			Start: 0,
			End:   len(req.Text),
		}}
	}
	return structure.NewTree(elements)
}

// chunkOutcome collects one chunk's extraction output. Slots are indexed by
// chunk so assembly order is deterministic regardless of scheduling.
type chunkOutcome struct {
	entities []graph.Entity
	triples  []graph.Triple
	failures []ChunkFailure
}

// extractAll runs two-phase extraction over all chunks with bounded
// concurrency. Chunk failures are recorded, never propagated.
func (b *Builder) extractAll(ctx context.Context, text string, chunks []chunker.Chunk, schema domain.Schema, level extract.Level) ([]graph.Entity, []graph.Triple, []ChunkFailure) {
	ex := extract.New(b.chat, extract.Config{
		Model:   b.cfg.Chat.Model,
		Retries: b.cfg.Retries,
	})

	outcomes := make([]chunkOutcome, len(chunks))
	sem := make(chan struct{}, b.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, ch := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ch chunker.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = b.extractChunk(ctx, ex, text, ch, schema, level)
		}(i, ch)
	}
	wg.Wait()

	var (
		entities []graph.Entity
		triples  []graph.Triple
		failures []ChunkFailure
	)
	for _, out := range outcomes {
		entities = append(entities, out.entities...)
		triples = append(triples, out.triples...)
		failures = append(failures, out.failures...)
	}
	return entities, triples, failures
}

// extractChunk runs both extraction phases for one chunk under its own
// deadline. Phase 2 only runs over the entities phase 1 produced; a phase-2
// failure keeps the chunk's entities.
func (b *Builder) extractChunk(ctx context.Context, ex *extract.Extractor, text string, ch chunker.Chunk, schema domain.Schema, level extract.Level) chunkOutcome {
	ctx, cancel := context.WithTimeout(ctx, chunkTimeout)
	defer cancel()

	chunkText := text[ch.Start:ch.End]
	var out chunkOutcome

	entities, err := ex.Entities(ctx, chunkText, ch, schema, level)
	if err != nil {
		slog.Warn("chunk entity extraction failed",
			"chunk", ch.Index, "error", err)
		out.failures = append(out.failures, ChunkFailure{
			ChunkIndex: ch.Index, Phase: "entities", Err: err.Error(),
		})
		return out
	}
	out.entities = entities

	triples, err := ex.Relationships(ctx, chunkText, ch, entities, schema)
	if err != nil {
		slog.Warn("chunk relationship extraction failed",
			"chunk", ch.Index, "error", err)
		out.failures = append(out.failures, ChunkFailure{
			ChunkIndex: ch.Index, Phase: "relationships", Err: err.Error(),
		})
		return out
	}
	out.triples = triples
	return out
}

// embedEntities embeds entity-node labels in batches. Embedding failures
// only cost the vectors, never the build.
func (b *Builder) embedEntities(ctx context.Context, nodes []graph.Node) map[string][]float32 {
	if b.embed == nil || !b.cfg.EmbedEntities {
		return nil
	}

	var ids []string
	var texts []string
	for _, n := range nodes {
		if n.Kind == graph.KindEntity {
			ids = append(ids, n.ID)
			texts = append(texts, n.Text)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	embeddings := make(map[string][]float32, len(ids))
	for start := 0; start < len(ids); start += embedBatchSize {
		end := min(start+embedBatchSize, len(ids))
		vecs, err := b.embed.Embed(ctx, texts[start:end])
		if err != nil {
			slog.Warn("entity embedding failed, continuing without vectors",
				"batch_start", start, "error", err)
			continue
		}
		for j, v := range vecs {
			embeddings[ids[start+j]] = v
		}
	}
	return embeddings
}

// filterDangling drops edges whose endpoints are not both in the node set.
// The store enforces this too; filtering here keeps a failed lookup from
// aborting the write.
func filterDangling(nodes []graph.Node, edges []graph.Edge) []graph.Edge {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	kept := edges[:0]
	for _, e := range edges {
		if !known[e.SourceID] || !known[e.TargetID] {
			slog.Warn("dropping edge with missing endpoint",
				"edge", e.ID, "source", e.SourceID, "target", e.TargetID)
			continue
		}
		kept = append(kept, e)
	}
	return kept
}
