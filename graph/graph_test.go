package graph

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"PostgreSQL", "postgresql"},
		{"  PostgreSQL  ", "postgresql"},
		{"Apache\t Kafka", "apache kafka"},
		{"apache kafka", "apache kafka"},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEntityIDDeterministic(t *testing.T) {
	a := EntityID("Database", "PostgreSQL", "technical", "sec-1")
	b := EntityID("database", "  postgresql ", "Technical", "sec-1")
	if a != b {
		t.Errorf("IDs differ for equivalent entities: %q vs %q", a, b)
	}
	if len(a) != len("ent_")+32 {
		t.Errorf("ID length = %d, want %d", len(a), len("ent_")+32)
	}
}

func TestEntityIDScopedToStructure(t *testing.T) {
	// The same surface entity in two different elements is two nodes.
	a := EntityID("Clause", "termination", "legal", "sec-2")
	b := EntityID("Clause", "termination", "legal", "sec-7")
	if a == b {
		t.Error("IDs should differ across structural elements")
	}
}

func TestEntityIDSeparatorsUnambiguous(t *testing.T) {
	// Field boundaries must not be forgeable by concatenation.
	a := EntityID("ab", "c", "d", "e")
	b := EntityID("a", "bc", "d", "e")
	if a == b {
		t.Error("IDs collide across different field splits")
	}
}

func TestEdgeIDDeterministic(t *testing.T) {
	a := EdgeID(EdgeRelatedTo, "ent_1", "ent_2", "uses")
	b := EdgeID(EdgeRelatedTo, "ent_1", "ent_2", "USES")
	if a != b {
		t.Errorf("edge IDs differ on verb case: %q vs %q", a, b)
	}
	if a == EdgeID(EdgeRelatedTo, "ent_2", "ent_1", "USES") {
		t.Error("edge ID should be direction-sensitive")
	}
}

func TestEdgeVerb(t *testing.T) {
	e := Edge{Type: EdgeRelatedTo, Properties: map[string]any{"relationship_name": "USES"}}
	if got := e.Verb(); got != "USES" {
		t.Errorf("Verb() = %q, want USES", got)
	}
	bare := Edge{Type: EdgeContainsStructure}
	if got := bare.Verb(); got != EdgeContainsStructure {
		t.Errorf("Verb() = %q, want %q", got, EdgeContainsStructure)
	}
}
