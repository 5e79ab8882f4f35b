package structure

import (
	"log/slog"
	"sort"

	"github.com/docgraph/docgraph/chunker"
	"github.com/docgraph/docgraph/graph"
)

// Grafter maps structural elements onto the document's offset space and
// attributes extracted entities to the element that contains them.
type Grafter struct {
	tree   *Tree
	chunks []chunker.Chunk
}

// NewGrafter returns a grafter for one document build.
func NewGrafter(tree *Tree, chunks []chunker.Chunk) *Grafter {
	return &Grafter{tree: tree, chunks: chunks}
}

// Attribute assigns each entity's owning structural element in place.
//
// Entities with a known mention span go to the most specific element whose
// range contains the span. Elements without offset information then claim
// the entities of the chunk holding their nearest known anchor point,
// provided the current attribution is a strict ancestor (a less specific
// element). An offsetless Table inside a Section takes the Section's
// entities from its anchor chunk, but never steals from a sibling.
func (g *Grafter) Attribute(entities []graph.Entity) {
	for i := range entities {
		e := &entities[i]
		start, end := e.Start, e.End
		if start < 0 || end <= start {
			// Unknown mention span: fall back to the chunk's range.
			if c := g.chunk(e.ChunkIndex); c != nil {
				start, end = c.Start, c.End
			} else {
				e.StructureID = g.tree.RootID()
				continue
			}
		}
		e.StructureID = g.tree.DeepestContaining(start, end).ID
	}

	g.claimForOffsetless(entities)
}

// claimForOffsetless runs the anchor-point fallback for elements whose
// ranges the parser could not derive. Deeper elements claim first so the
// most specific offsetless element wins.
func (g *Grafter) claimForOffsetless(entities []graph.Entity) {
	var offsetless []*Element
	for _, e := range g.tree.Elements() {
		if !e.HasOffsets() && e.ID != g.tree.RootID() {
			offsetless = append(offsetless, e)
		}
	}
	if len(offsetless) == 0 {
		return
	}
	sort.Slice(offsetless, func(i, j int) bool {
		di, dj := g.tree.Depth(offsetless[i].ID), g.tree.Depth(offsetless[j].ID)
		if di != dj {
			return di > dj
		}
		return offsetless[i].ID < offsetless[j].ID
	})

	for _, elem := range offsetless {
		anchor := g.tree.AnchorOffset(elem.ID)
		chunkIdx := g.chunkAt(anchor)
		if chunkIdx < 0 {
			continue
		}
		claimed := 0
		for i := range entities {
			e := &entities[i]
			if e.ChunkIndex != chunkIdx {
				continue
			}
			if g.tree.IsAncestor(e.StructureID, elem.ID) {
				e.StructureID = elem.ID
				claimed++
			}
		}
		if claimed > 0 {
			slog.Debug("structure: offsetless element claimed entities via anchor",
				"element", elem.ID, "type", elem.Type, "anchor", anchor, "claimed", claimed)
		}
	}
}

// Nodes returns one graph node per structural element.
func (g *Grafter) Nodes() []graph.Node {
	elems := g.tree.Elements()
	nodes := make([]graph.Node, 0, len(elems))
	for _, e := range elems {
		props := map[string]any{}
		for k, v := range e.Properties {
			props[k] = v
		}
		if e.HasOffsets() {
			props["start"] = e.Start
			props["end"] = e.End
		}
		nodes = append(nodes, graph.Node{
			ID:         e.ID,
			Kind:       graph.KindStructure,
			Type:       e.Type,
			Text:       e.Title(),
			Properties: props,
		})
	}
	return nodes
}

// ContainmentEdges returns a CONTAINS_STRUCTURE edge for every parent-child
// pair in the element tree.
func (g *Grafter) ContainmentEdges() []graph.Edge {
	var edges []graph.Edge
	for _, e := range g.tree.Elements() {
		for _, childID := range g.tree.Children(e.ID) {
			edges = append(edges, graph.Edge{
				ID:       graph.EdgeID(graph.EdgeContainsStructure, e.ID, childID, graph.EdgeContainsStructure),
				SourceID: e.ID,
				TargetID: childID,
				Type:     graph.EdgeContainsStructure,
				Properties: map[string]any{
					"extraction_method": "structural",
				},
			})
		}
	}
	return edges
}

// MentionEdges links each finalised entity node to its owning structural
// element: DESCRIBES from tables, DEPICTS from images, MENTIONS otherwise.
func (g *Grafter) MentionEdges(entityNodes []graph.Node) []graph.Edge {
	var edges []graph.Edge
	for _, n := range entityNodes {
		if n.Kind != graph.KindEntity || n.StructureID == "" {
			continue
		}
		elem := g.tree.Get(n.StructureID)
		if elem == nil {
			continue
		}
		verb := mentionVerb(elem.Type)
		edges = append(edges, graph.Edge{
			ID:       graph.EdgeID(graph.EdgeRelatedTo, elem.ID, n.ID, verb),
			SourceID: elem.ID,
			TargetID: n.ID,
			Type:     graph.EdgeRelatedTo,
			Properties: map[string]any{
				"relationship_name": verb,
				"confidence":        1.0,
				"extraction_method": "structural",
			},
		})
	}
	return edges
}

// mentionVerb maps a structural element type to its mention verb.
func mentionVerb(elemType string) string {
	switch elemType {
	case TypeTable:
		return graph.VerbDescribes
	case TypeImage:
		return graph.VerbDepicts
	default:
		return graph.VerbMentions
	}
}

// chunk returns the chunk with the given index, or nil.
func (g *Grafter) chunk(index int) *chunker.Chunk {
	if index < 0 || index >= len(g.chunks) {
		return nil
	}
	return &g.chunks[index]
}

// chunkAt returns the index of the chunk containing the given offset, or -1.
func (g *Grafter) chunkAt(offset int) int {
	for _, c := range g.chunks {
		if offset >= c.Start && offset < c.End {
			return c.Index
		}
	}
	// An offset at the very end of the document belongs to the last chunk.
	if n := len(g.chunks); n > 0 && offset == g.chunks[n-1].End {
		return g.chunks[n-1].Index
	}
	return -1
}
