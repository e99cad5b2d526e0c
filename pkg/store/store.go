// Package store persists the ingested US Code hierarchy in SQLite. Every
// title, organizational level, and section becomes one row in the nodes
// table, keyed by its stable identifier and linked to its parent; each
// completed ingestion run is recorded in source_versions.
//
// The default driver is modernc.org/sqlite, opened with the usual
// production pragmas (WAL, busy_timeout, foreign_keys).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultBatchSize is how many node inserts share one transaction.
const DefaultBatchSize = 50

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id               TEXT PRIMARY KEY,
	parent_id        TEXT,
	level_name       TEXT NOT NULL,
	level_index      INTEGER NOT NULL,
	sort_order       INTEGER NOT NULL,
	name             TEXT NOT NULL,
	path             TEXT NOT NULL,
	readable_id      TEXT NOT NULL DEFAULT '',
	heading_citation TEXT NOT NULL DEFAULT '',
	source_url       TEXT NOT NULL DEFAULT '',
	accessed_at      TEXT NOT NULL,
	content          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
CREATE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path);

CREATE TABLE IF NOT EXISTS source_versions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source_url  TEXT NOT NULL,
	title_num   TEXT NOT NULL,
	ingested_at TEXT NOT NULL,
	node_count  INTEGER NOT NULL
);
`

// Node is one row of the ingested hierarchy: a title, a level, or a
// section. Content holds the section's classified blocks as JSON; it is
// empty for titles and levels.
type Node struct {
	ID              string
	ParentID        string
	LevelName       string
	LevelIndex      int
	SortOrder       int
	Name            string
	Path            string
	ReadableID      string
	HeadingCitation string
	SourceURL       string
	AccessedAt      time.Time
	Content         string
}

// SourceVersion records one completed ingestion of a title.
type SourceVersion struct {
	SourceURL  string
	TitleNum   string
	IngestedAt time.Time
	NodeCount  int
}

// NodeStore is a SQLite-backed node repository.
type NodeStore struct {
	db        *sql.DB
	batchSize int
}

// Option customises Open behaviour.
type Option func(*NodeStore)

// WithBatchSize sets how many inserts share one transaction.
// Default: DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *NodeStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// Open opens (creating if necessary) the node database at path. Parent
// directories are created for file-backed databases.
func Open(path string, opts ...Option) (*NodeStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	nodeStore := &NodeStore{db: db, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(nodeStore)
	}
	return nodeStore, nil
}

// OpenMemory opens an in-memory store for testing. MaxOpenConns is pinned
// to 1 so every query hits the same in-memory database, and t.Cleanup
// closes it automatically.
func OpenMemory(t testing.TB, opts ...Option) *NodeStore {
	t.Helper()
	nodeStore, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	nodeStore.db.SetMaxOpenConns(1)
	t.Cleanup(func() { nodeStore.Close() })
	return nodeStore
}

// Close closes the underlying database.
func (s *NodeStore) Close() error {
	return s.db.Close()
}

// InsertNodes upserts nodes in transactions of the configured batch size.
// Re-ingesting a title overwrites its previous rows in place.
func (s *NodeStore) InsertNodes(ctx context.Context, nodes []Node) error {
	for start := 0; start < len(nodes); start += s.batchSize {
		end := start + s.batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := s.insertBatch(ctx, nodes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *NodeStore) insertBatch(ctx context.Context, nodes []Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO nodes
			(id, parent_id, level_name, level_index, sort_order, name, path,
			 readable_id, heading_citation, source_url, accessed_at, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, node := range nodes {
		var parentID any
		if node.ParentID != "" {
			parentID = node.ParentID
		}
		_, err := stmt.ExecContext(ctx,
			node.ID, parentID, node.LevelName, node.LevelIndex, node.SortOrder,
			node.Name, node.Path, node.ReadableID, node.HeadingCitation,
			node.SourceURL, node.AccessedAt.UTC().Format(time.RFC3339), node.Content)
		if err != nil {
			return fmt.Errorf("store: insert node %s: %w", node.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

// RecordSourceVersion appends one ingestion record.
func (s *NodeStore) RecordSourceVersion(ctx context.Context, v SourceVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_versions (source_url, title_num, ingested_at, node_count)
		VALUES (?, ?, ?, ?)`,
		v.SourceURL, v.TitleNum, v.IngestedAt.UTC().Format(time.RFC3339), v.NodeCount)
	if err != nil {
		return fmt.Errorf("store: record source version: %w", err)
	}
	return nil
}

// NodeByID fetches one node. sql.ErrNoRows is wrapped, not swallowed, so
// callers can test with errors.Is.
func (s *NodeStore) NodeByID(ctx context.Context, id string) (Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, level_name, level_index, sort_order, name, path,
		       readable_id, heading_citation, source_url, accessed_at, content
		FROM nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if err != nil {
		return Node{}, fmt.Errorf("store: node %s: %w", id, err)
	}
	return node, nil
}

// ChildrenOf returns the direct children of a node in sort order.
func (s *NodeStore) ChildrenOf(ctx context.Context, parentID string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, level_name, level_index, sort_order, name, path,
		       readable_id, heading_citation, source_url, accessed_at, content
		FROM nodes WHERE parent_id = ? ORDER BY sort_order`, parentID)
	if err != nil {
		return nil, fmt.Errorf("store: children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: children of %s: %w", parentID, err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: children of %s: %w", parentID, err)
	}
	return nodes, nil
}

// CountNodes returns the total number of stored nodes.
func (s *NodeStore) CountNodes(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count nodes: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (Node, error) {
	var node Node
	var parentID sql.NullString
	var accessedAt string
	err := row.Scan(&node.ID, &parentID, &node.LevelName, &node.LevelIndex,
		&node.SortOrder, &node.Name, &node.Path, &node.ReadableID,
		&node.HeadingCitation, &node.SourceURL, &accessedAt, &node.Content)
	if err != nil {
		return Node{}, err
	}
	node.ParentID = parentID.String
	if ts, err := time.Parse(time.RFC3339, accessedAt); err == nil {
		node.AccessedAt = ts
	}
	return node, nil
}
