package extract

import (
	"fmt"
	"strings"

	"github.com/docgraph/docgraph/domain"
)

// entityPrompt asks the model to extract only entities (nouns) from one
// chunk. Keeping the task atomic works better with small local models; the
// relationship pass runs separately with the entity set fixed.
const entityPrompt = `You are an entity extraction engine for %s documents.
Given the following text chunk, extract entities mentioned in it.

ENTITY TYPES (use exactly these values):
%s

%s
Return a JSON array where each element is:
  {"type": string, "text": string, "properties": object}

Rules:
- "text" must be the exact surface form from the chunk.
- "type" must be one of the ENTITY TYPES above.
- Only include entities clearly supported by the text.
- If there are none, return an empty array: []
- Do NOT include any text outside the JSON array.

TEXT:
%s`

// relationshipPrompt asks the model to find relationships between the
// already-extracted entities of the same chunk. Cross-chunk relationships
// are out of scope for this pass.
const relationshipPrompt = `You are a relationship extraction engine for %s documents.
Given a text chunk and the entities found in it, extract relationships between those entities.

KNOWN ENTITIES (source and target must come from this list):
%s

RELATIONSHIP NAMES (prefer exactly these values):
%s

Return a JSON array where each element is:
  {"source_text": string, "target_text": string, "relationship_name": string, "confidence": number}

Rules:
- source_text and target_text must be entity texts from the KNOWN ENTITIES list.
- confidence is a float between 0.0 and 1.0.
- Only include relationships clearly supported by the text.
- If there are none, return an empty array: []
- Do NOT include any text outside the JSON array.

TEXT:
%s`

// levelGuidance is the extraction-level specific instruction block. Each
// level targets a different entity-count band; the band also acts as a hard
// cap on what the pipeline accepts back.
var levelGuidance = map[Level]string{
	LevelBrief: "LEVEL: brief. Extract only the most important entities " +
		"(at most %d). Prefer precision over recall; skip incidental mentions.\n",
	LevelStandard: "LEVEL: standard. Extract the significant entities " +
		"(at most %d). Balance precision and recall.\n",
	LevelDeep: "LEVEL: deep. Extract every entity you can support from the " +
		"text (at most %d), including secondary and incidental mentions.\n",
}

func buildEntityPrompt(chunkText string, schema domain.Schema, level Level) string {
	guidance := fmt.Sprintf(levelGuidance[level], level.MaxEntities())
	return fmt.Sprintf(entityPrompt,
		schema.Name,
		"- "+strings.Join(schema.EntityTypes, "\n- "),
		guidance,
		chunkText)
}

func buildRelationshipPrompt(chunkText string, entityList []string, schema domain.Schema) string {
	return fmt.Sprintf(relationshipPrompt,
		schema.Name,
		"- "+strings.Join(entityList, "\n- "),
		"- "+strings.Join(schema.Verbs, "\n- "),
		chunkText)
}
