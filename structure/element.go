// Package structure models the document's structural-element hierarchy as
// reported by the parser, and grafts extracted entities onto it.
package structure

import (
	"errors"
	"fmt"
	"sort"
)

// Element types recognised in parser output.
const (
	TypeDocument = "Document"
	TypeSection  = "Section"
	TypeTable    = "Table"
	TypeImage    = "Image"
	TypeList     = "List"
)

var (
	// ErrNoRoot is returned when the element list lacks a parentless
	// Document element.
	ErrNoRoot = errors.New("structure: no root Document element")

	// ErrMultipleRoots is returned when more than one element has no parent.
	ErrMultipleRoots = errors.New("structure: multiple parentless elements")
)

// Element is one structural node from parser output. Start/End are character
// offsets into the document text, or -1 when the parser could not derive
// them (tables and images frequently lack exact offsets). Elements are
// created once before extraction and never mutated.
type Element struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ParentID   string         `json:"parent_id,omitempty"`
	Start      int            `json:"start"`
	End        int            `json:"end"`
	Properties map[string]any `json:"properties,omitempty"`
}

// HasOffsets reports whether the element's text range is known.
func (e Element) HasOffsets() bool {
	return e.Start >= 0 && e.End > e.Start
}

// Title returns a human-readable label for the element: its title or caption
// property when present, otherwise its ID.
func (e Element) Title() string {
	for _, key := range []string{"title", "caption", "name"} {
		if v, ok := e.Properties[key].(string); ok && v != "" {
			return v
		}
	}
	return e.ID
}

// Tree is the validated element hierarchy for one document.
type Tree struct {
	rootID   string
	elements map[string]*Element
	children map[string][]string
	depth    map[string]int
	order    []string // insertion order, for deterministic iteration
}

// NewTree validates a flat element list (exactly one parentless Document,
// every parent resolvable, no cycles) and builds the hierarchy.
func NewTree(elements []Element) (*Tree, error) {
	t := &Tree{
		elements: make(map[string]*Element, len(elements)),
		children: make(map[string][]string),
		depth:    make(map[string]int),
	}

	for i := range elements {
		e := elements[i]
		if e.ID == "" {
			return nil, fmt.Errorf("structure: element %d has empty id", i)
		}
		if _, dup := t.elements[e.ID]; dup {
			return nil, fmt.Errorf("structure: duplicate element id %q", e.ID)
		}
		t.elements[e.ID] = &e
		t.order = append(t.order, e.ID)

		if e.ParentID == "" {
			if t.rootID != "" {
				return nil, ErrMultipleRoots
			}
			if e.Type != TypeDocument {
				return nil, fmt.Errorf("structure: parentless element %q is %s, want %s", e.ID, e.Type, TypeDocument)
			}
			t.rootID = e.ID
		}
	}
	if t.rootID == "" {
		return nil, ErrNoRoot
	}

	for _, id := range t.order {
		e := t.elements[id]
		if e.ParentID == "" {
			continue
		}
		if _, ok := t.elements[e.ParentID]; !ok {
			return nil, fmt.Errorf("structure: element %q references unknown parent %q", e.ID, e.ParentID)
		}
		t.children[e.ParentID] = append(t.children[e.ParentID], e.ID)
	}

	// Assign depths breadth-first; unreached elements indicate a cycle.
	t.depth[t.rootID] = 0
	queue := []string{t.rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range t.children[id] {
			t.depth[child] = t.depth[id] + 1
			queue = append(queue, child)
		}
	}
	if len(t.depth) != len(t.elements) {
		return nil, fmt.Errorf("structure: %d elements unreachable from root (parent cycle)", len(t.elements)-len(t.depth))
	}

	return t, nil
}

// RootID returns the Document element's ID.
func (t *Tree) RootID() string { return t.rootID }

// Get returns the element with the given ID, or nil.
func (t *Tree) Get(id string) *Element { return t.elements[id] }

// Len returns the number of elements in the tree.
func (t *Tree) Len() int { return len(t.elements) }

// Elements returns all elements in insertion order.
func (t *Tree) Elements() []*Element {
	out := make([]*Element, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.elements[id])
	}
	return out
}

// Children returns the child IDs of an element in insertion order.
func (t *Tree) Children(id string) []string { return t.children[id] }

// Depth returns an element's distance from the root.
func (t *Tree) Depth(id string) int { return t.depth[id] }

// IsAncestor reports whether a is a strict ancestor of b.
func (t *Tree) IsAncestor(a, b string) bool {
	cur := t.elements[b]
	for cur != nil && cur.ParentID != "" {
		if cur.ParentID == a {
			return true
		}
		cur = t.elements[cur.ParentID]
	}
	return false
}

// DeepestContaining returns the most specific element whose known offset
// range fully contains [start, end). Falls back to the root Document when no
// offset-bearing element contains the span. Ties on depth resolve to the
// narrower range, then to the lexically smaller ID for determinism.
func (t *Tree) DeepestContaining(start, end int) *Element {
	best := t.elements[t.rootID]
	bestDepth := -1
	bestWidth := int(^uint(0) >> 1)

	ids := make([]string, len(t.order))
	copy(ids, t.order)
	sort.Strings(ids)

	for _, id := range ids {
		e := t.elements[id]
		if !e.HasOffsets() || e.Start > start || e.End < end {
			continue
		}
		d := t.depth[id]
		w := e.End - e.Start
		if d > bestDepth || (d == bestDepth && w < bestWidth) {
			best, bestDepth, bestWidth = e, d, w
		}
	}
	return best
}

// AnchorOffset returns the nearest known offset for an element that lacks
// its own: the first offset-bearing ancestor's start. Returns 0 when no
// ancestor carries offsets.
func (t *Tree) AnchorOffset(id string) int {
	cur := t.elements[id]
	for cur != nil {
		if cur.HasOffsets() {
			return cur.Start
		}
		if cur.ParentID == "" {
			break
		}
		cur = t.elements[cur.ParentID]
	}
	return 0
}
