package domain

import (
	"strings"
	"testing"
)

func TestClassifyTechnical(t *testing.T) {
	text := `The API gateway routes requests to each microservice. Deployment
runs on Kubernetes with a Docker image per service; the backend caches
query results and the frontend talks to a REST endpoint.`

	if got := Classify(text); got != Technical {
		t.Errorf("Classify = %q, want %q", got, Technical)
	}
}

func TestClassifyLegal(t *testing.T) {
	text := `WHEREAS the parties have entered into this agreement, and
pursuant to the obligations set forth herein, each party shall indemnify
the other against any liability arising from a breach of warranty.`

	if got := Classify(text); got != Legal {
		t.Errorf("Classify = %q, want %q", got, Legal)
	}
}

func TestClassifyNeutralDefaultsToGeneral(t *testing.T) {
	text := "The cat sat on the mat. It was a sunny day in the village."

	if got := Classify(text); got != General {
		t.Errorf("Classify = %q, want %q", got, General)
	}
}

func TestClassifyNeverFails(t *testing.T) {
	// Degenerate inputs still produce a valid domain name.
	for _, text := range []string{"", " ", strings.Repeat("x", 100000)} {
		got := Classify(text)
		if !Known(got) {
			t.Errorf("Classify(%.10q...) = %q, not a known domain", text, got)
		}
	}
}

func TestClassifyReadsOnlyWindow(t *testing.T) {
	// Signal past the window must not affect the result.
	padding := strings.Repeat("neutral filler text with no signal. ", 800)
	if len(padding) < classifyWindow {
		t.Fatalf("padding too short for test: %d", len(padding))
	}
	text := padding + strings.Repeat("plaintiff defendant statute jurisdiction ", 50)

	if got := Classify(text); got != General {
		t.Errorf("Classify = %q, want %q (late signal should be ignored)", got, General)
	}
}

func TestSchemaCanonicalEntityType(t *testing.T) {
	s := Get(Technical)

	if got := s.CanonicalEntityType("framework"); got != "Framework" {
		t.Errorf("CanonicalEntityType(framework) = %q, want Framework", got)
	}
	if got := s.CanonicalEntityType("  Database "); got != "Database" {
		t.Errorf("CanonicalEntityType(Database) = %q, want Database", got)
	}
	// Unknown types coerce to the fallback, never dropped.
	if got := s.CanonicalEntityType("Gadget"); got != s.FallbackType {
		t.Errorf("CanonicalEntityType(Gadget) = %q, want %q", got, s.FallbackType)
	}
}

func TestSchemaCanonicalVerb(t *testing.T) {
	s := Get(Technical)

	verb, ok := s.CanonicalVerb("uses")
	if !ok || verb != "USES" {
		t.Errorf("CanonicalVerb(uses) = %q, %v, want USES, true", verb, ok)
	}
	if _, ok := s.CanonicalVerb("LOVES"); ok {
		t.Error("CanonicalVerb(LOVES) should not resolve")
	}
}

func TestGetUnknownFallsBackToGeneral(t *testing.T) {
	s := Get("medical")
	if s.Name != General {
		t.Errorf("Get(medical).Name = %q, want %q", s.Name, General)
	}
}

func TestEverySchemaHasFallback(t *testing.T) {
	for _, name := range Names() {
		s := Get(name)
		if s.FallbackType == "" {
			t.Errorf("schema %q has no fallback type", name)
		}
		if !s.HasEntityType(s.FallbackType) {
			t.Errorf("schema %q fallback %q not in its own vocabulary", name, s.FallbackType)
		}
	}
}
