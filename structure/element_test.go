package structure

import (
	"errors"
	"testing"
)

func testElements() []Element {
	return []Element{
		{ID: "doc", Type: TypeDocument, Start: 0, End: 1000},
		{ID: "sec-1", Type: TypeSection, ParentID: "doc", Start: 0, End: 500},
		{ID: "sec-2", Type: TypeSection, ParentID: "doc", Start: 500, End: 1000},
		{ID: "sec-1-1", Type: TypeSection, ParentID: "sec-1", Start: 100, End: 400},
		{ID: "tbl-1", Type: TypeTable, ParentID: "sec-1-1", Start: -1, End: -1,
			Properties: map[string]any{"caption": "Latency results"}},
	}
}

func TestNewTree(t *testing.T) {
	tree, err := NewTree(testElements())
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	if tree.RootID() != "doc" {
		t.Errorf("RootID = %q, want doc", tree.RootID())
	}
	if tree.Len() != 5 {
		t.Errorf("Len = %d, want 5", tree.Len())
	}
	if d := tree.Depth("tbl-1"); d != 3 {
		t.Errorf("Depth(tbl-1) = %d, want 3", d)
	}
	if got := tree.Children("sec-1"); len(got) != 1 || got[0] != "sec-1-1" {
		t.Errorf("Children(sec-1) = %v, want [sec-1-1]", got)
	}
}

func TestNewTreeNoRoot(t *testing.T) {
	_, err := NewTree([]Element{
		{ID: "a", Type: TypeSection, ParentID: "b"},
		{ID: "b", Type: TypeSection, ParentID: "a"},
	})
	// Both elements have parents, so there is no root (and a cycle).
	if !errors.Is(err, ErrNoRoot) {
		t.Errorf("err = %v, want ErrNoRoot", err)
	}
}

func TestNewTreeMultipleRoots(t *testing.T) {
	_, err := NewTree([]Element{
		{ID: "a", Type: TypeDocument},
		{ID: "b", Type: TypeDocument},
	})
	if !errors.Is(err, ErrMultipleRoots) {
		t.Errorf("err = %v, want ErrMultipleRoots", err)
	}
}

func TestNewTreeNonDocumentRoot(t *testing.T) {
	if _, err := NewTree([]Element{{ID: "a", Type: TypeSection}}); err == nil {
		t.Error("parentless non-Document element should be rejected")
	}
}

func TestNewTreeUnknownParent(t *testing.T) {
	_, err := NewTree([]Element{
		{ID: "doc", Type: TypeDocument},
		{ID: "a", Type: TypeSection, ParentID: "ghost"},
	})
	if err == nil {
		t.Error("unresolvable parent should be rejected")
	}
}

func TestNewTreeCycle(t *testing.T) {
	_, err := NewTree([]Element{
		{ID: "doc", Type: TypeDocument},
		{ID: "a", Type: TypeSection, ParentID: "b"},
		{ID: "b", Type: TypeSection, ParentID: "a"},
	})
	if err == nil {
		t.Error("parent cycle should be rejected")
	}
}

func TestNewTreeDuplicateID(t *testing.T) {
	_, err := NewTree([]Element{
		{ID: "doc", Type: TypeDocument},
		{ID: "a", Type: TypeSection, ParentID: "doc"},
		{ID: "a", Type: TypeSection, ParentID: "doc"},
	})
	if err == nil {
		t.Error("duplicate element id should be rejected")
	}
}

func TestDeepestContaining(t *testing.T) {
	tree, err := NewTree(testElements())
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	tests := []struct {
		start, end int
		want       string
	}{
		{150, 160, "sec-1-1"}, // inside the nested section
		{50, 60, "sec-1"},     // inside sec-1 but before sec-1-1
		{600, 610, "sec-2"},
		{450, 550, "doc"}, // straddles sec-1 and sec-2
	}
	for _, tt := range tests {
		if got := tree.DeepestContaining(tt.start, tt.end).ID; got != tt.want {
			t.Errorf("DeepestContaining(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestDeepestContainingFallsBackToRoot(t *testing.T) {
	tree, err := NewTree([]Element{
		{ID: "doc", Type: TypeDocument, Start: -1, End: -1},
		{ID: "sec", Type: TypeSection, ParentID: "doc", Start: -1, End: -1},
	})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	if got := tree.DeepestContaining(10, 20).ID; got != "doc" {
		t.Errorf("DeepestContaining = %q, want doc", got)
	}
}

func TestIsAncestor(t *testing.T) {
	tree, err := NewTree(testElements())
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	if !tree.IsAncestor("doc", "tbl-1") {
		t.Error("doc should be an ancestor of tbl-1")
	}
	if !tree.IsAncestor("sec-1", "sec-1-1") {
		t.Error("sec-1 should be an ancestor of sec-1-1")
	}
	if tree.IsAncestor("sec-2", "sec-1-1") {
		t.Error("sec-2 is not an ancestor of sec-1-1")
	}
	if tree.IsAncestor("sec-1", "sec-1") {
		t.Error("IsAncestor must be strict")
	}
}

func TestAnchorOffset(t *testing.T) {
	tree, err := NewTree(testElements())
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	// tbl-1 has no offsets; its anchor is its parent section's start.
	if got := tree.AnchorOffset("tbl-1"); got != 100 {
		t.Errorf("AnchorOffset(tbl-1) = %d, want 100", got)
	}
	if got := tree.AnchorOffset("sec-2"); got != 500 {
		t.Errorf("AnchorOffset(sec-2) = %d, want 500", got)
	}
}

func TestElementTitle(t *testing.T) {
	e := Element{ID: "tbl-1", Type: TypeTable, Properties: map[string]any{"caption": "Latency results"}}
	if got := e.Title(); got != "Latency results" {
		t.Errorf("Title = %q, want caption", got)
	}
	bare := Element{ID: "sec-9"}
	if got := bare.Title(); got != "sec-9" {
		t.Errorf("Title = %q, want element ID", got)
	}
}
