// Package chunker splits document text into ordered, token-bounded,
// offset-addressed chunks. Chunk ranges are contiguous and non-overlapping;
// their union always equals the full document range.
package chunker

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"
)

// ErrInvalidInput is returned for empty or non-text (invalid UTF-8) input.
var ErrInvalidInput = errors.New("chunker: empty or non-text input")

// DefaultMaxTokens is the per-chunk token budget when none is configured.
const DefaultMaxTokens = 8000

// toleranceChars is how far back from the hard character limit the splitter
// will look for a whitespace boundary before cutting mid-word.
const toleranceChars = 200

// Chunk is one bounded slice of document text, addressed by byte offsets
// [Start, End) over the original text.
type Chunk struct {
	Index      int `json:"index"`
	Start      int `json:"start"`
	End        int `json:"end"`
	TokenCount int `json:"token_count"`
}

// Config controls the chunking behaviour.
type Config struct {
	MaxTokens int // Maximum estimated tokens per chunk.
}

// Chunker splits raw document text into offset-addressed chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Chunker{cfg: cfg}
}

// Split divides text into the fewest chunks whose estimated token count does
// not exceed MaxTokens, preferring paragraph and then sentence boundaries.
// It is a pure function of its input.
func (c *Chunker) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}
	if !utf8.ValidString(text) {
		return nil, ErrInvalidInput
	}

	cuts := c.cutPoints(text)

	chunks := make([]Chunk, 0, len(cuts)+1)
	start := 0
	for _, cut := range cuts {
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Start:      start,
			End:        cut,
			TokenCount: EstimateTokens(text[start:cut]),
		})
		start = cut
	}
	chunks = append(chunks, Chunk{
		Index:      len(chunks),
		Start:      start,
		End:        len(text),
		TokenCount: EstimateTokens(text[start:]),
	})
	return chunks, nil
}

// cutPoints returns the ordered byte offsets at which the text is split.
// Nil means the whole text fits in a single chunk.
func (c *Chunker) cutPoints(text string) []int {
	if EstimateTokens(text) <= c.cfg.MaxTokens {
		return nil
	}

	var cuts []int
	chunkTokens := 0

	for _, seg := range paragraphSpans(text) {
		segTokens := EstimateTokens(text[seg.start:seg.end])

		// A single paragraph above the budget is split at sentence
		// boundaries (and, as a last resort, at the hard limit).
		if segTokens > c.cfg.MaxTokens {
			if chunkTokens > 0 {
				cuts = append(cuts, seg.start)
			}
			inner, tail := c.splitOversized(text, seg)
			cuts = append(cuts, inner...)
			chunkTokens = tail
			continue
		}

		if chunkTokens > 0 && chunkTokens+segTokens > c.cfg.MaxTokens {
			cuts = append(cuts, seg.start)
			chunkTokens = 0
		}
		chunkTokens += segTokens
	}

	return cuts
}

// splitOversized splits one oversized span (a paragraph) at sentence
// boundaries, falling back to hard cuts when a single sentence exceeds the
// budget. It returns the cut offsets inside the span and the token count of
// the trailing open fragment.
func (c *Chunker) splitOversized(text string, seg span) (cuts []int, tailTokens int) {
	chunkTokens := 0
	for _, s := range sentenceSpans(text, seg) {
		st := EstimateTokens(text[s.start:s.end])

		if st > c.cfg.MaxTokens {
			if chunkTokens > 0 {
				cuts = append(cuts, s.start)
				chunkTokens = 0
			}
			hard, tail := c.hardCuts(text, s)
			cuts = append(cuts, hard...)
			chunkTokens = tail
			continue
		}

		if chunkTokens > 0 && chunkTokens+st > c.cfg.MaxTokens {
			cuts = append(cuts, s.start)
			chunkTokens = 0
		}
		chunkTokens += st
	}
	return cuts, chunkTokens
}

// hardCuts cuts a span that has no usable sentence boundaries. Each cut lands
// at the last whitespace within the tolerance window before the character
// limit, or exactly at the limit when the window holds no whitespace.
func (c *Chunker) hardCuts(text string, seg span) (cuts []int, tailTokens int) {
	// tokens ~ words * 1.3 and an average word+space runs ~6 chars, so the
	// character budget per chunk is maxTokens/1.3*6.
	charLimit := int(float64(c.cfg.MaxTokens) / tokensPerWord * 6)
	if charLimit < 1 {
		charLimit = 1
	}

	pos := seg.start
	for seg.end-pos > charLimit {
		cut := pos + charLimit
		// Back up to a rune boundary.
		for cut > pos && !utf8.RuneStart(text[cut]) {
			cut--
		}
		// Prefer a whitespace boundary within the tolerance window.
		windowStart := cut - toleranceChars
		if windowStart < pos {
			windowStart = pos
		}
		if ws := strings.LastIndexAny(text[windowStart:cut], " \t\n"); ws >= 0 {
			cut = windowStart + ws + 1
		}
		if cut <= pos {
			break
		}
		cuts = append(cuts, cut)
		pos = cut
	}
	return cuts, EstimateTokens(text[pos:seg.end])
}

// span is a half-open byte range over the document text.
type span struct {
	start, end int
}

// paragraphSpans partitions text into spans at blank-line boundaries. The
// spans are contiguous: each span's end is the next span's start, separators
// included, so no byte of the document is lost.
func paragraphSpans(text string) []span {
	var spans []span
	start := 0
	for start < len(text) {
		idx := strings.Index(text[start:], "\n\n")
		if idx < 0 {
			spans = append(spans, span{start, len(text)})
			break
		}
		end := start + idx
		// Extend past the full run of blank lines.
		for end < len(text) && (text[end] == '\n' || text[end] == '\r') {
			end++
		}
		spans = append(spans, span{start, end})
		start = end
	}
	return spans
}

// sentenceSpans partitions a span into contiguous sentence spans, splitting
// after '.', '?' or '!' followed by whitespace.
func sentenceSpans(text string, seg span) []span {
	var spans []span
	start := seg.start
	for i := seg.start; i < seg.end-1; i++ {
		ch := text[i]
		if ch != '.' && ch != '?' && ch != '!' {
			continue
		}
		next := text[i+1]
		if next != ' ' && next != '\n' && next != '\t' {
			continue
		}
		// The sentence owns its trailing whitespace.
		end := i + 1
		for end < seg.end && (text[end] == ' ' || text[end] == '\n' || text[end] == '\t') {
			end++
		}
		spans = append(spans, span{start, end})
		start = end
		i = end - 1
	}
	if start < seg.end {
		spans = append(spans, span{start, seg.end})
	}
	return spans
}

// tokensPerWord is the word-to-token ratio used by the estimator.
const tokensPerWord = 1.3

// EstimateTokens approximates the token count of text using a simple
// word-based heuristic: tokens ~ words * 1.3.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * tokensPerWord))
}
