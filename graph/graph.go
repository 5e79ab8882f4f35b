// Package graph defines the property-graph model produced by the build
// pipeline and the reconciliation step that merges per-chunk extraction
// results into one coherent node/edge set.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Node kinds.
const (
	KindEntity    = "entity"
	KindStructure = "structure"
)

// Generic edge types. Domain-specific verbs live in the edge properties
// under "relationship_name", keeping the stored edge vocabulary small.
const (
	EdgeContainsStructure = "CONTAINS_STRUCTURE"
	EdgeRelatedTo         = "RELATED_TO"
)

// Structural mention verbs and the derived co-occurrence verb.
const (
	VerbMentions             = "MENTIONS"
	VerbDescribes            = "DESCRIBES"
	VerbDepicts              = "DEPICTS"
	VerbFoundInSameStructure = "FOUND_IN_SAME_STRUCTURE"
)

// Node is a finalised graph node: either a domain entity or a structural
// element of the document.
type Node struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Type        string         `json:"type"`
	Text        string         `json:"text"`
	StructureID string         `json:"structure_id,omitempty"` // owning element, entity nodes only
	Properties  map[string]any `json:"properties,omitempty"`
}

// Edge is a finalised graph edge. Both endpoints must exist in the same
// build's node set; the reconciler drops edges that do not resolve.
type Edge struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Verb returns the domain-specific relationship name carried in the edge
// properties, or the generic edge type when none is set.
func (e Edge) Verb() string {
	if v, ok := e.Properties["relationship_name"].(string); ok && v != "" {
		return v
	}
	return e.Type
}

// Entity is a candidate entity produced by Phase-1 extraction. It becomes a
// Node once the grafter has assigned its owning structural element and the
// reconciler has deduplicated it.
type Entity struct {
	Type        string // coerced into the domain vocabulary
	TypeRaw     string // model's original type when it was coerced
	Text        string // original surface text
	Context     string // snippet around the mention
	Extractor   string // model identifier that produced it
	Level       string // extraction level in force
	ChunkIndex  int
	Start, End  int    // absolute mention offsets, -1 when unknown
	StructureID string // assigned by the grafter
}

// Triple is a candidate relationship produced by Phase-2 extraction. Its
// endpoints are entity surface texts scoped to the same chunk.
type Triple struct {
	SourceText string
	TargetText string
	Verb       string // coerced into the domain vocabulary or RELATED_TO
	VerbRaw    string // model's original verb when it was coerced
	Confidence float64
	Context    string
	ChunkIndex int
}

// NormalizeText canonicalises entity text for identity comparison:
// lowercase with collapsed inner whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// EntityID computes the deterministic canonical ID of an entity. Two
// entities are the same node iff type, normalized text, domain and owning
// structural element all match.
func EntityID(entityType, text, domainName, structureID string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(entityType)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeText(text)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(domainName)))
	h.Write([]byte{0})
	h.Write([]byte(structureID))
	return "ent_" + hex.EncodeToString(h.Sum(nil))[:32]
}

// EdgeID computes a deterministic edge ID so repeated builds of the same
// document produce identical edge sets.
func EdgeID(edgeType, sourceID, targetID, verb string) string {
	h := sha256.New()
	h.Write([]byte(edgeType))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(targetID))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToUpper(verb)))
	return "rel_" + hex.EncodeToString(h.Sum(nil))[:32]
}
