// Package extract runs the two per-chunk language-model passes: Phase 1
// produces candidate entities, Phase 2 produces relationships between them.
// Model output is untrusted; everything is parsed, validated and coerced
// into the document's domain schema before it enters the pipeline.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/docgraph/docgraph/chunker"
	"github.com/docgraph/docgraph/domain"
	"github.com/docgraph/docgraph/graph"
	"github.com/docgraph/docgraph/llm"
)

var (
	// ErrTimeout marks a model call that exceeded its deadline after the
	// retry budget was spent. Per-chunk, never fatal to the document.
	ErrTimeout = errors.New("extract: model call timed out")

	// ErrMalformed marks model output that failed to parse as the expected
	// JSON after the retry budget was spent. Per-chunk, never fatal.
	ErrMalformed = errors.New("extract: malformed model response")
)

// Level selects the recall/precision trade-off of Phase-1 extraction. It
// controls prompt selection and the accepted entity-count band, not the
// pipeline's behaviour.
type Level string

const (
	LevelBrief    Level = "brief"
	LevelStandard Level = "standard"
	LevelDeep     Level = "deep"
)

// Valid reports whether l is a recognised extraction level.
func (l Level) Valid() bool {
	switch l {
	case LevelBrief, LevelStandard, LevelDeep:
		return true
	}
	return false
}

// MaxEntities is the per-chunk entity-count band for the level. Entities
// beyond the band are truncated, so a brief extraction is always a subset
// of what standard and deep would accept.
func (l Level) MaxEntities() int {
	switch l {
	case LevelBrief:
		return 10
	case LevelDeep:
		return 50
	default:
		return 25
	}
}

// DefaultRetries is how many times a failed model call is repeated with the
// same input before the chunk degrades to a partial failure.
const DefaultRetries = 2

// snippetRadius is how many bytes of context are kept around a mention.
const snippetRadius = 80

// Config configures an Extractor.
type Config struct {
	Model   string // extractor identifier recorded in provenance
	Retries int    // retry budget per model call; DefaultRetries when 0
}

// Extractor runs the per-chunk extraction passes against one LLM provider.
type Extractor struct {
	provider llm.Provider
	model    string
	retries  int
}

// New returns an Extractor backed by the given provider.
func New(p llm.Provider, cfg Config) *Extractor {
	retries := cfg.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	model := cfg.Model
	if model == "" {
		model = "llm"
	}
	return &Extractor{provider: p, model: model, retries: retries}
}

// Entities runs Phase 1 for one chunk: a level-specific prompt constrained
// to the domain's entity vocabulary. Types outside the vocabulary are
// coerced to the domain's fallback type, never dropped.
func (x *Extractor) Entities(ctx context.Context, chunkText string, chunk chunker.Chunk, schema domain.Schema, level Level) ([]graph.Entity, error) {
	prompt := buildEntityPrompt(chunkText, schema, level)

	raw, err := x.call(ctx, prompt, parseCheckEntities)
	if err != nil {
		return nil, err
	}
	parsed, _ := parseEntities(raw) // already validated by parseCheckEntities

	if max := level.MaxEntities(); len(parsed) > max {
		slog.Debug("extract: truncating to level band",
			"chunk", chunk.Index, "level", level, "got", len(parsed), "max", max)
		parsed = parsed[:max]
	}

	entities := make([]graph.Entity, 0, len(parsed))
	for _, re := range parsed {
		text := strings.TrimSpace(re.Text)
		if text == "" {
			continue
		}
		coerced := schema.CanonicalEntityType(re.Type)
		e := graph.Entity{
			Type:       coerced,
			Text:       text,
			Extractor:  x.model,
			Level:      string(level),
			ChunkIndex: chunk.Index,
			Start:      -1,
			End:        -1,
		}
		if !schema.HasEntityType(re.Type) {
			e.TypeRaw = strings.TrimSpace(re.Type)
		}
		if start, end := indexFold(chunkText, text); start >= 0 {
			e.Start = chunk.Start + start
			e.End = chunk.Start + end
			e.Context = snippet(chunkText, start, end-start)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// Relationships runs Phase 2 for one chunk, given that chunk's Phase-1
// entities (text and type only, never the raw text of other chunks). Verbs
// outside the domain vocabulary are coerced to the generic RELATED_TO verb
// with the original preserved.
func (x *Extractor) Relationships(ctx context.Context, chunkText string, chunk chunker.Chunk, entities []graph.Entity, schema domain.Schema) ([]graph.Triple, error) {
	if len(entities) < 2 {
		// A relationship needs two endpoints.
		return nil, nil
	}

	list := make([]string, 0, len(entities))
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		key := graph.NormalizeText(e.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		list = append(list, fmt.Sprintf("%s (%s)", e.Text, e.Type))
	}

	prompt := buildRelationshipPrompt(chunkText, list, schema)

	raw, err := x.call(ctx, prompt, parseCheckTriples)
	if err != nil {
		return nil, err
	}
	parsed, _ := parseTriples(raw)

	triples := make([]graph.Triple, 0, len(parsed))
	for _, rt := range parsed {
		src := strings.TrimSpace(rt.SourceText)
		tgt := strings.TrimSpace(rt.TargetText)
		if src == "" || tgt == "" {
			continue
		}
		t := graph.Triple{
			SourceText: src,
			TargetText: tgt,
			Confidence: rt.Confidence,
			ChunkIndex: chunk.Index,
		}
		if verb, ok := schema.CanonicalVerb(rt.RelationshipName); ok {
			t.Verb = verb
		} else {
			t.Verb = graph.EdgeRelatedTo
			t.VerbRaw = strings.TrimSpace(rt.RelationshipName)
		}
		triples = append(triples, t)
	}
	return triples, nil
}

// call sends the prompt, retrying on timeouts and malformed responses up to
// the retry budget. check validates the raw response without consuming it.
func (x *Extractor) call(ctx context.Context, prompt string, check func(string) error) (string, error) {
	var lastErr error
	malformed := false
	attempts := x.retries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		resp, err := x.provider.Chat(ctx, llm.ChatRequest{
			Messages:       []llm.Message{{Role: "user", Content: prompt}},
			Temperature:    0.0,
			ResponseFormat: "json_object",
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			lastErr, malformed = err, false
			slog.Warn("extract: model call failed", "attempt", attempt+1, "error", err)
			continue
		}

		if err := check(resp.Content); err != nil {
			lastErr, malformed = err, true
			slog.Warn("extract: malformed response", "attempt", attempt+1, "error", err)
			continue
		}
		return resp.Content, nil
	}

	if malformed {
		return "", fmt.Errorf("%w: %v", ErrMalformed, lastErr)
	}
	return "", fmt.Errorf("%w: %v", ErrTimeout, lastErr)
}

func parseCheckEntities(raw string) error {
	_, err := parseEntities(raw)
	return err
}

func parseCheckTriples(raw string) error {
	_, err := parseTriples(raw)
	return err
}

// indexFold returns the byte range of the first case-insensitive occurrence
// of sub in s, or (-1, -1). Offsets are always valid for s itself: case
// folding can change byte lengths (U+0130 lowercases to two runes), so the
// fallback search walks rune windows of s instead of searching a folded copy.
func indexFold(s, sub string) (start, end int) {
	if sub == "" {
		return -1, -1
	}
	if idx := strings.Index(s, sub); idx >= 0 {
		return idx, idx + len(sub)
	}

	n := utf8.RuneCountInString(sub)
	starts := make([]int, 0, len(s)+1)
	for i := range s {
		starts = append(starts, i)
	}
	starts = append(starts, len(s))

	for i := 0; i+n < len(starts); i++ {
		if strings.EqualFold(s[starts[i]:starts[i+n]], sub) {
			return starts[i], starts[i+n]
		}
	}
	return -1, -1
}

// snippet returns the text surrounding a mention, trimmed to rune
// boundaries, for provenance.
func snippet(text string, idx, length int) string {
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + length + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	// Step to valid rune boundaries.
	for start > 0 && start < len(text) && (text[start]&0xC0) == 0x80 {
		start++
	}
	for end > start && end < len(text) && (text[end]&0xC0) == 0x80 {
		end--
	}
	return strings.TrimSpace(text[start:end])
}
