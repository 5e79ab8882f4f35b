package graph

import (
	"log/slog"
	"sort"
)

// Confidence assigned to edges the reconciler synthesises from structural
// co-occurrence. Deliberately below the default model-edge confidence so
// derived edges rank under model-proposed ones.
const derivedConfidence = 0.4

// defaultModelConfidence is used when the model omitted a confidence value.
const defaultModelConfidence = 0.8

// maxMergedContexts bounds how many provenance snippets a node accumulates.
const maxMergedContexts = 5

// Reconciler is the single-threaded barrier step that merges per-chunk
// extraction results into the final node/edge set. It is the sole writer of
// the cross-chunk identity map; producers hand it immutable values.
type Reconciler struct {
	domain string
}

// NewReconciler returns a reconciler for one document build.
func NewReconciler(domainName string) *Reconciler {
	return &Reconciler{domain: domainName}
}

// Reconcile deduplicates entities by identity key, remaps relationship
// endpoints to canonical IDs, synthesises same-structure co-occurrence
// edges, and returns the final immutable entity node/edge set.
func (r *Reconciler) Reconcile(entities []Entity, triples []Triple) ([]Node, []Edge) {
	nodes, byChunk := r.dedupe(entities)

	var edges []Edge
	seenEdge := make(map[string]bool)
	// linked tracks unordered entity pairs that already carry a
	// model-proposed edge, keyed by sorted ID concatenation.
	linked := make(map[[2]string]bool)

	for _, t := range triples {
		scope := byChunk[t.ChunkIndex]
		srcID, srcOK := scope[NormalizeText(t.SourceText)]
		tgtID, tgtOK := scope[NormalizeText(t.TargetText)]
		if !srcOK || !tgtOK || srcID == tgtID {
			slog.Warn("graph: dangling relationship dropped",
				"source", t.SourceText, "target", t.TargetText,
				"verb", t.Verb, "chunk", t.ChunkIndex)
			continue
		}

		id := EdgeID(EdgeRelatedTo, srcID, tgtID, t.Verb)
		if seenEdge[id] {
			continue
		}
		seenEdge[id] = true

		conf := t.Confidence
		if conf <= 0 {
			conf = defaultModelConfidence
		}
		props := map[string]any{
			"relationship_name": t.Verb,
			"confidence":        conf,
			"extraction_method": "llm",
			"domain":            r.domain,
		}
		if t.VerbRaw != "" && t.VerbRaw != t.Verb {
			props["relationship_name_raw"] = t.VerbRaw
		}
		if t.Context != "" {
			props["context"] = t.Context
		}
		edges = append(edges, Edge{
			ID:         id,
			SourceID:   srcID,
			TargetID:   tgtID,
			Type:       EdgeRelatedTo,
			Properties: props,
		})
		linked[pairKey(srcID, tgtID)] = true
	}

	edges = append(edges, r.deriveCooccurrence(nodes, linked, seenEdge)...)
	return nodes, edges
}

// dedupe merges entities sharing an identity key into one node each
// (first-seen wins, provenance merged) and returns the per-chunk
// normalized-text → canonical-ID scope used for endpoint remapping.
func (r *Reconciler) dedupe(entities []Entity) ([]Node, map[int]map[string]string) {
	var nodes []Node
	index := make(map[string]int) // canonical ID -> position in nodes
	byChunk := make(map[int]map[string]string)

	for _, e := range entities {
		id := EntityID(e.Type, e.Text, r.domain, e.StructureID)

		scope := byChunk[e.ChunkIndex]
		if scope == nil {
			scope = make(map[string]string)
			byChunk[e.ChunkIndex] = scope
		}
		scope[NormalizeText(e.Text)] = id

		if pos, ok := index[id]; ok {
			mergeProvenance(&nodes[pos], e)
			continue
		}

		props := map[string]any{
			"text":       e.Text,
			"level":      e.Level,
			"domain":     r.domain,
			"extractors": appendUnique(nil, e.Extractor),
			"contexts":   appendUnique(nil, e.Context),
		}
		if e.TypeRaw != "" && e.TypeRaw != e.Type {
			props["type_raw"] = e.TypeRaw
		}
		index[id] = len(nodes)
		nodes = append(nodes, Node{
			ID:          id,
			Kind:        KindEntity,
			Type:        e.Type,
			Text:        e.Text,
			StructureID: e.StructureID,
			Properties:  props,
		})
	}
	return nodes, byChunk
}

// deriveCooccurrence emits a FOUND_IN_SAME_STRUCTURE edge for every pair of
// distinct entities attributed to the same structural element, unless a
// model-proposed edge already links the pair.
func (r *Reconciler) deriveCooccurrence(nodes []Node, linked map[[2]string]bool, seenEdge map[string]bool) []Edge {
	byStructure := make(map[string][]string)
	for _, n := range nodes {
		if n.StructureID == "" {
			continue
		}
		byStructure[n.StructureID] = append(byStructure[n.StructureID], n.ID)
	}

	var edges []Edge
	for _, ids := range byStructure {
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if linked[pairKey(ids[i], ids[j])] {
					continue
				}
				id := EdgeID(EdgeRelatedTo, ids[i], ids[j], VerbFoundInSameStructure)
				if seenEdge[id] {
					continue
				}
				seenEdge[id] = true
				edges = append(edges, Edge{
					ID:       id,
					SourceID: ids[i],
					TargetID: ids[j],
					Type:     EdgeRelatedTo,
					Properties: map[string]any{
						"relationship_name": VerbFoundInSameStructure,
						"confidence":        derivedConfidence,
						"extraction_method": "derived",
						"domain":            r.domain,
					},
				})
			}
		}
	}
	return edges
}

// mergeProvenance folds a duplicate entity's provenance into the existing
// node: context snippets and extractor identifiers accumulate, everything
// else keeps its first-seen value.
func mergeProvenance(n *Node, e Entity) {
	if ctxs, ok := n.Properties["contexts"].([]string); ok {
		if len(ctxs) < maxMergedContexts {
			n.Properties["contexts"] = appendUnique(ctxs, e.Context)
		}
	}
	if exts, ok := n.Properties["extractors"].([]string); ok {
		n.Properties["extractors"] = appendUnique(exts, e.Extractor)
	}
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
