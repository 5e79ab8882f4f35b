package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/docgraph/docgraph/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testGraph() ([]graph.Node, []graph.Edge) {
	nodes := []graph.Node{
		{ID: "doc-el", Kind: graph.KindStructure, Type: "Document", Text: "doc"},
		{ID: "ent_a", Kind: graph.KindEntity, Type: "Framework", Text: "FastAPI",
			StructureID: "doc-el", Properties: map[string]any{"domain": "technical"}},
		{ID: "ent_b", Kind: graph.KindEntity, Type: "Language", Text: "Python",
			StructureID: "doc-el"},
	}
	edges := []graph.Edge{
		{ID: "rel_1", SourceID: "ent_a", TargetID: "ent_b", Type: graph.EdgeRelatedTo,
			Properties: map[string]any{"relationship_name": "USES", "confidence": 0.9}},
		{ID: "rel_2", SourceID: "doc-el", TargetID: "ent_a", Type: graph.EdgeRelatedTo,
			Properties: map[string]any{"relationship_name": graph.VerbMentions}},
	}
	return nodes, edges
}

func TestUpsertGraphAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes, edges := testGraph()

	if err := s.UpsertGraph(ctx, "doc-1", "build-1", "technical", nodes, edges, nil, false); err != nil {
		t.Fatalf("UpsertGraph: %v", err)
	}

	gotNodes, gotEdges, err := s.DocumentGraph(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DocumentGraph: %v", err)
	}
	if len(gotNodes) != 3 || len(gotEdges) != 2 {
		t.Fatalf("read back %d nodes, %d edges; want 3, 2", len(gotNodes), len(gotEdges))
	}

	byID := make(map[string]graph.Node)
	for _, n := range gotNodes {
		byID[n.ID] = n
	}
	if got := byID["ent_a"]; got.Text != "FastAPI" || got.StructureID != "doc-el" {
		t.Errorf("ent_a = %+v, want FastAPI in doc-el", got)
	}
	if got := byID["ent_a"].Properties["domain"]; got != "technical" {
		t.Errorf("ent_a domain property = %v, want technical", got)
	}
}

func TestUpsertGraphIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes, edges := testGraph()

	for i := 0; i < 3; i++ {
		if err := s.UpsertGraph(ctx, "doc-1", "build-1", "technical", nodes, edges, nil, false); err != nil {
			t.Fatalf("UpsertGraph run %d: %v", i, err)
		}
	}

	n, err := s.NodeCount(ctx, "doc-1")
	if err != nil {
		t.Fatalf("NodeCount: %v", err)
	}
	e, err := s.EdgeCount(ctx, "doc-1")
	if err != nil {
		t.Fatalf("EdgeCount: %v", err)
	}
	if n != 3 || e != 2 {
		t.Errorf("after 3 identical writes: %d nodes, %d edges; want 3, 2", n, e)
	}
}

func TestForceRebuildReplacesGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes, edges := testGraph()

	if err := s.UpsertGraph(ctx, "doc-1", "build-1", "technical", nodes, edges, nil, false); err != nil {
		t.Fatalf("UpsertGraph: %v", err)
	}

	// Rebuild with a smaller graph: stale rows must disappear.
	newNodes := []graph.Node{
		{ID: "ent_c", Kind: graph.KindEntity, Type: "Database", Text: "Redis"},
	}
	if err := s.UpsertGraph(ctx, "doc-1", "build-2", "technical", newNodes, nil, nil, true); err != nil {
		t.Fatalf("UpsertGraph force: %v", err)
	}

	gotNodes, gotEdges, err := s.DocumentGraph(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DocumentGraph: %v", err)
	}
	if len(gotNodes) != 1 || len(gotEdges) != 0 {
		t.Fatalf("after rebuild: %d nodes, %d edges; want 1, 0", len(gotNodes), len(gotEdges))
	}
	if gotNodes[0].ID != "ent_c" {
		t.Errorf("surviving node = %q, want ent_c", gotNodes[0].ID)
	}
}

func TestForceRebuildScopedToDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes, edges := testGraph()

	if err := s.UpsertGraph(ctx, "doc-1", "build-1", "technical", nodes, edges, nil, false); err != nil {
		t.Fatalf("UpsertGraph doc-1: %v", err)
	}

	otherNodes := []graph.Node{
		{ID: "ent_x", Kind: graph.KindEntity, Type: "Company", Text: "Acme"},
	}
	if err := s.UpsertGraph(ctx, "doc-2", "build-1", "business", otherNodes, nil, nil, false); err != nil {
		t.Fatalf("UpsertGraph doc-2: %v", err)
	}

	// Force-rebuild doc-1; doc-2 must be untouched.
	if err := s.UpsertGraph(ctx, "doc-1", "build-2", "technical", nil, nil, nil, true); err != nil {
		t.Fatalf("UpsertGraph force: %v", err)
	}

	n1, _ := s.NodeCount(ctx, "doc-1")
	n2, _ := s.NodeCount(ctx, "doc-2")
	if n1 != 0 {
		t.Errorf("doc-1 nodes = %d, want 0", n1)
	}
	if n2 != 1 {
		t.Errorf("doc-2 nodes = %d, want 1 (unrelated document touched)", n2)
	}
}

func TestForceRebuildFailureLeavesDocumentRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes, edges := testGraph()

	if err := s.UpsertGraph(ctx, "doc-1", "build-1", "technical", nodes, edges, nil, false); err != nil {
		t.Fatalf("UpsertGraph: %v", err)
	}

	// An edge to a nonexistent node violates the foreign key and aborts the
	// rebuild; the old graph and the old document metadata must both survive.
	badEdges := []graph.Edge{
		{ID: "rel_bad", SourceID: "ghost", TargetID: "ghost2", Type: graph.EdgeRelatedTo},
	}
	if err := s.UpsertGraph(ctx, "doc-1", "build-2", "legal", nil, badEdges, nil, true); err == nil {
		t.Fatal("expected rebuild to fail on dangling edge")
	}

	n, err := s.NodeCount(ctx, "doc-1")
	if err != nil {
		t.Fatalf("NodeCount: %v", err)
	}
	if n != 3 {
		t.Errorf("nodes after failed rebuild = %d, want 3", n)
	}

	var buildID, domainName string
	if err := s.DB().QueryRow(
		"SELECT build_id, domain FROM documents WHERE id = ?", "doc-1").Scan(&buildID, &domainName); err != nil {
		t.Fatalf("reading document row: %v", err)
	}
	if buildID != "build-1" || domainName != "technical" {
		t.Errorf("document row = (%s, %s), want (build-1, technical)", buildID, domainName)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes, edges := testGraph()

	if err := s.UpsertGraph(ctx, "doc-1", "build-1", "technical", nodes, edges, nil, false); err != nil {
		t.Fatalf("UpsertGraph: %v", err)
	}
	if err := s.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	n, err := s.NodeCount(ctx, "doc-1")
	if err != nil {
		t.Fatalf("NodeCount: %v", err)
	}
	if n != 0 {
		t.Errorf("nodes after delete = %d, want 0", n)
	}
}

func TestSimilarEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes, _ := testGraph()

	embeddings := map[string][]float32{
		"ent_a": {1, 0, 0},
		"ent_b": {0, 1, 0},
	}
	if err := s.UpsertGraph(ctx, "doc-1", "build-1", "technical", nodes, nil, embeddings, false); err != nil {
		t.Fatalf("UpsertGraph: %v", err)
	}

	results, err := s.SimilarEntities(ctx, []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("SimilarEntities: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Node.ID != "ent_a" {
		t.Errorf("nearest = %q, want ent_a", results[0].Node.ID)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results not ordered by distance")
	}
}

func TestEmbeddingRewriteKeepsSingleRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes, _ := testGraph()

	for i := 0; i < 2; i++ {
		embeddings := map[string][]float32{"ent_a": {float32(i), 1, 0}}
		if err := s.UpsertGraph(ctx, "doc-1", "build-1", "technical", nodes, nil, embeddings, false); err != nil {
			t.Fatalf("UpsertGraph run %d: %v", i, err)
		}
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM vec_entities").Scan(&count); err != nil {
		t.Fatalf("counting vec rows: %v", err)
	}
	if count != 1 {
		t.Errorf("vec_entities rows = %d, want 1 (rewrite must reuse the rowid)", count)
	}
}
