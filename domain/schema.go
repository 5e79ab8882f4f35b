// Package domain holds the per-domain entity/relationship vocabularies and
// the lexicon-based classifier that selects one schema per document.
package domain

import "strings"

// Domain names. Every document resolves to exactly one of these.
const (
	Technical = "technical"
	Academic  = "academic"
	Business  = "business"
	Legal     = "legal"
	General   = "general"
)

// Schema is the allowed entity-type and relationship-verb vocabulary for one
// domain. All model output for a document is validated against its schema.
type Schema struct {
	Name         string
	EntityTypes  []string
	FallbackType string // unrecognised entity types are coerced to this
	Verbs        []string
}

// HasEntityType reports whether t is part of the schema's entity vocabulary.
// Matching is case-insensitive.
func (s Schema) HasEntityType(t string) bool {
	for _, e := range s.EntityTypes {
		if strings.EqualFold(e, t) {
			return true
		}
	}
	return false
}

// CanonicalEntityType returns the schema's canonical spelling of t, or the
// fallback type when t is not in the vocabulary.
func (s Schema) CanonicalEntityType(t string) string {
	t = strings.TrimSpace(t)
	for _, e := range s.EntityTypes {
		if strings.EqualFold(e, t) {
			return e
		}
	}
	return s.FallbackType
}

// HasVerb reports whether v is part of the schema's relationship vocabulary.
func (s Schema) HasVerb(v string) bool {
	for _, w := range s.Verbs {
		if strings.EqualFold(w, v) {
			return true
		}
	}
	return false
}

// CanonicalVerb returns the schema's canonical spelling of v and true, or
// ("", false) when v is outside the vocabulary.
func (s Schema) CanonicalVerb(v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, w := range s.Verbs {
		if strings.EqualFold(w, v) {
			return w, true
		}
	}
	return "", false
}

var schemas = map[string]Schema{
	Technical: {
		Name:         Technical,
		EntityTypes:  []string{"Technology", "Framework", "Library", "Language", "Database", "Tool", "Protocol", "Platform", "Concept"},
		FallbackType: "Concept",
		Verbs:        []string{"IMPLEMENTS", "USES", "DEPENDS_ON", "EXTENDS", "REPLACES", "INTEGRATES_WITH", "SUPPORTS"},
	},
	Academic: {
		Name:         Academic,
		EntityTypes:  []string{"Theory", "Method", "Dataset", "Metric", "Author", "Institution", "Publication", "Concept"},
		FallbackType: "Concept",
		Verbs:        []string{"CITES", "PROPOSES", "EVALUATES", "EXTENDS", "REFUTES", "APPLIES"},
	},
	Business: {
		Name:         Business,
		EntityTypes:  []string{"Company", "Product", "Market", "Metric", "Person", "Strategy", "Concept"},
		FallbackType: "Concept",
		Verbs:        []string{"COMPETES_WITH", "ACQUIRES", "PARTNERS_WITH", "SELLS", "TARGETS", "OWNS"},
	},
	Legal: {
		Name:         Legal,
		EntityTypes:  []string{"Statute", "Regulation", "Clause", "Party", "Court", "Obligation", "Concept"},
		FallbackType: "Concept",
		Verbs:        []string{"REFERENCES", "AMENDS", "REQUIRES", "PROHIBITS", "SUPERSEDES", "DEFINES"},
	},
	General: {
		Name:         General,
		EntityTypes:  []string{"Person", "Organization", "Location", "Event", "Product", "Concept"},
		FallbackType: "Concept",
		Verbs:        []string{"ASSOCIATED_WITH", "PART_OF", "LOCATED_IN", "PARTICIPATES_IN"},
	},
}

// Get returns the schema for the named domain, falling back to the general
// schema for unknown names. It never fails.
func Get(name string) Schema {
	if s, ok := schemas[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s
	}
	return schemas[General]
}

// Known reports whether name is a recognised domain.
func Known(name string) bool {
	_, ok := schemas[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Names returns all registered domain names.
func Names() []string {
	return []string{Technical, Academic, Business, Legal, General}
}
