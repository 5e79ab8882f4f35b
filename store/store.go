// Package store persists the document property graph in SQLite. Writes use
// MERGE-by-ID semantics so re-running a build is idempotent, and all data is
// scoped to its owning document so rebuilds never touch other documents.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/docgraph/docgraph/graph"
)

func init() {
	sqlite_vec.Auto()
}

// ErrUnavailable is returned when the graph store cannot be reached or a
// write fails. It never invalidates a computed graph; callers may retry the
// write without recomputing.
var ErrUnavailable = errors.New("store: graph store unavailable")

// writeBatchSize bounds how many node/edge merges share one transaction on
// the non-rebuild path.
const writeBatchSize = 500

// DefaultEmbeddingDim matches common local embedding models.
const DefaultEmbeddingDim = 768

// SimilarEntity is one KNN result from the entity embedding index.
type SimilarEntity struct {
	Node     graph.Node `json:"node"`
	Distance float64    `json:"distance"`
}

// Store wraps the SQLite database for all docgraph persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	if embeddingDim <= 0 {
		embeddingDim = DefaultEmbeddingDim
	}

	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ErrUnavailable, err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// UpsertGraph writes a document's node/edge set.
//
// With force=true the document's previous nodes and edges are deleted and
// the new set inserted inside one transaction: deletes fully precede
// inserts, and any failure rolls the whole unit back, so the document is
// never observable half-deleted. With force=false writes are MERGE-by-ID in
// bounded batches, so re-running an unchanged document only refreshes
// properties.
func (s *Store) UpsertGraph(ctx context.Context, docID, buildID, domainName string, nodes []graph.Node, edges []graph.Edge, embeddings map[string][]float32, force bool) error {
	if force {
		// The document row changes with the graph: a failed rebuild must not
		// leave new build metadata over the surviving old graph.
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if err := upsertDocumentRow(ctx, tx, docID, buildID, domainName); err != nil {
				return err
			}
			if err := deleteDocumentData(ctx, tx, docID); err != nil {
				return err
			}
			return mergeGraph(ctx, tx, docID, nodes, edges, embeddings)
		})
		if err != nil {
			return fmt.Errorf("%w: rebuild write: %v", ErrUnavailable, err)
		}
		return nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return upsertDocumentRow(ctx, tx, docID, buildID, domainName)
	})
	if err != nil {
		return fmt.Errorf("%w: document row: %v", ErrUnavailable, err)
	}

	// Merge nodes first (edges carry foreign keys into nodes), batched.
	for start := 0; start < len(nodes); start += writeBatchSize {
		end := min(start+writeBatchSize, len(nodes))
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			return mergeNodes(ctx, tx, docID, nodes[start:end], embeddings)
		})
		if err != nil {
			return fmt.Errorf("%w: node batch %d: %v", ErrUnavailable, start/writeBatchSize, err)
		}
	}
	for start := 0; start < len(edges); start += writeBatchSize {
		end := min(start+writeBatchSize, len(edges))
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			return mergeEdges(ctx, tx, docID, edges[start:end])
		})
		if err != nil {
			return fmt.Errorf("%w: edge batch %d: %v", ErrUnavailable, start/writeBatchSize, err)
		}
	}
	return nil
}

// DeleteDocument removes a document and all its graph data. The delete is
// scoped: other documents' nodes and edges are untouched.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteDocumentData(ctx, tx, docID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", docID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete document: %v", ErrUnavailable, err)
	}
	return nil
}

// DocumentGraph reads back a document's full node/edge set.
func (s *Store) DocumentGraph(ctx context.Context, docID string) ([]graph.Node, []graph.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, node_type, text, COALESCE(structure_id, ''), COALESCE(properties, '{}')
		FROM nodes WHERE document_id = ? ORDER BY id
	`, docID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var nodes []graph.Node
	for rows.Next() {
		var n graph.Node
		var props string
		if err := rows.Scan(&n.ID, &n.Kind, &n.Type, &n.Text, &n.StructureID, &props); err != nil {
			return nil, nil, err
		}
		if props != "" {
			_ = json.Unmarshal([]byte(props), &n.Properties)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	erows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, edge_type, COALESCE(properties, '{}')
		FROM edges WHERE document_id = ? ORDER BY id
	`, docID)
	if err != nil {
		return nil, nil, err
	}
	defer erows.Close()

	var edges []graph.Edge
	for erows.Next() {
		var e graph.Edge
		var props string
		if err := erows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Type, &props); err != nil {
			return nil, nil, err
		}
		if props != "" {
			_ = json.Unmarshal([]byte(props), &e.Properties)
		}
		edges = append(edges, e)
	}
	if err := erows.Err(); err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

// NodeCount returns the number of stored nodes for a document.
func (s *Store) NodeCount(ctx context.Context, docID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE document_id = ?", docID).Scan(&n)
	return n, err
}

// EdgeCount returns the number of stored edges for a document.
func (s *Store) EdgeCount(ctx context.Context, docID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM edges WHERE document_id = ?", docID).Scan(&n)
	return n, err
}

// SimilarEntities performs a KNN search over the entity embedding index and
// returns the nearest stored entity nodes.
func (s *Store) SimilarEntities(ctx context.Context, embedding []float32, k int) ([]SimilarEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.distance, n.id, n.kind, n.node_type, n.text,
			COALESCE(n.structure_id, ''), COALESCE(n.properties, '{}')
		FROM vec_entities v
		JOIN nodes n ON n.vec_id = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SimilarEntity
	for rows.Next() {
		var r SimilarEntity
		var props string
		if err := rows.Scan(&r.Distance, &r.Node.ID, &r.Node.Kind, &r.Node.Type,
			&r.Node.Text, &r.Node.StructureID, &props); err != nil {
			return nil, err
		}
		if props != "" {
			_ = json.Unmarshal([]byte(props), &r.Node.Properties)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- internals ---

func upsertDocumentRow(ctx context.Context, tx *sql.Tx, docID, buildID, domainName string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, domain, build_id, status)
		VALUES (?, ?, ?, 'ready')
		ON CONFLICT(id) DO UPDATE SET
			domain = excluded.domain,
			build_id = excluded.build_id,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP
	`, docID, domainName, buildID)
	return err
}

// deleteDocumentData removes all graph data for one document inside tx.
// Ordering matters: embeddings, then edges, then nodes.
func deleteDocumentData(ctx context.Context, tx *sql.Tx, docID string) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM vec_entities WHERE rowid IN (
			SELECT vec_id FROM nodes WHERE document_id = ? AND vec_id IS NOT NULL
		)`, docID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM edges WHERE document_id = ?", docID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		"DELETE FROM nodes WHERE document_id = ?", docID)
	return err
}

func mergeGraph(ctx context.Context, tx *sql.Tx, docID string, nodes []graph.Node, edges []graph.Edge, embeddings map[string][]float32) error {
	if err := mergeNodes(ctx, tx, docID, nodes, embeddings); err != nil {
		return err
	}
	return mergeEdges(ctx, tx, docID, edges)
}

func mergeNodes(ctx context.Context, tx *sql.Tx, docID string, nodes []graph.Node, embeddings map[string][]float32) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, document_id, kind, node_type, text, structure_id, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			node_type = excluded.node_type,
			text = excluded.text,
			structure_id = excluded.structure_id,
			properties = excluded.properties
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range nodes {
		props, err := json.Marshal(n.Properties)
		if err != nil {
			return fmt.Errorf("marshalling node %s properties: %w", n.ID, err)
		}
		var structureID any
		if n.StructureID != "" {
			structureID = n.StructureID
		}
		if _, err := stmt.ExecContext(ctx, n.ID, docID, n.Kind, n.Type, n.Text, structureID, string(props)); err != nil {
			return fmt.Errorf("merging node %s: %w", n.ID, err)
		}
		if emb, ok := embeddings[n.ID]; ok && len(emb) > 0 {
			if err := mergeEmbedding(ctx, tx, n.ID, emb); err != nil {
				return fmt.Errorf("merging embedding for node %s: %w", n.ID, err)
			}
		}
	}
	return nil
}

// mergeEmbedding stores or refreshes a node's embedding, reusing the node's
// existing vec rowid when present.
func mergeEmbedding(ctx context.Context, tx *sql.Tx, nodeID string, emb []float32) error {
	var vecID sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT vec_id FROM nodes WHERE id = ?", nodeID).Scan(&vecID); err != nil {
		return err
	}

	if vecID.Valid {
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO vec_entities (rowid, embedding) VALUES (?, ?)",
			vecID.Int64, serializeFloat32(emb))
		return err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO vec_entities (embedding) VALUES (?)", serializeFloat32(emb))
	if err != nil {
		return err
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE nodes SET vec_id = ? WHERE id = ?", rowID, nodeID)
	return err
}

func mergeEdges(ctx context.Context, tx *sql.Tx, docID string, edges []graph.Edge) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (id, document_id, source_id, target_id, edge_type, properties)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			target_id = excluded.target_id,
			edge_type = excluded.edge_type,
			properties = excluded.properties
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range edges {
		props, err := json.Marshal(e.Properties)
		if err != nil {
			return fmt.Errorf("marshalling edge %s properties: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, docID, e.SourceID, e.TargetID, e.Type, string(props)); err != nil {
			return fmt.Errorf("merging edge %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
