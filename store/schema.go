package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Document registry: one row per built document, used for scoped deletes
-- and rebuild bookkeeping.
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    domain TEXT NOT NULL,
    build_id TEXT,
    status TEXT DEFAULT 'ready',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Graph nodes: domain entities and structural elements, always scoped to
-- their owning document.
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    node_type TEXT NOT NULL,
    text TEXT NOT NULL,
    structure_id TEXT,
    properties JSON,
    vec_id INTEGER
);

-- Graph edges. Endpoints are enforced against the node set so a stored
-- edge can never dangle.
CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    source_id TEXT NOT NULL REFERENCES nodes(id),
    target_id TEXT NOT NULL REFERENCES nodes(id),
    edge_type TEXT NOT NULL,
    properties JSON
);

-- Optional entity-label embeddings via sqlite-vec. Rows are linked from
-- nodes.vec_id.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_entities USING vec0(
    embedding float[%d]
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_nodes_document ON nodes(document_id);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
CREATE INDEX IF NOT EXISTS idx_nodes_structure ON nodes(structure_id);
CREATE INDEX IF NOT EXISTS idx_edges_document ON edges(document_id);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type);
`, embeddingDim)
}
